package radius

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
)

// randomSalt returns a 2-octet salt for RFC 2868 Tunnel-Password
// encryption, with the high bit of the first octet set as the RFC
// requires so the salt is never all-zero.
func randomSalt() [2]byte {
	var s [2]byte
	rand.Read(s[:])
	s[0] |= 0x80
	return s
}

// encryptUserPassword implements RFC 2865 Appendix A: the password is
// padded to a multiple of 16 octets and XORed block by block against
// MD5(secret || previous-ciphertext-block), with the request
// Authenticator standing in for "previous block" on the first block.
func encryptUserPassword(plain []byte, secret []byte, authenticator [16]byte) []byte {
	padded := padTo16(plain)
	out := make([]byte, len(padded))
	prev := authenticator[:]
	for i := 0; i < len(padded); i += 16 {
		mask := md5Sum(secret, prev)
		xorBlock(out[i:i+16], padded[i:i+16], mask)
		prev = out[i : i+16]
	}
	return out
}

// decryptUserPassword reverses encryptUserPassword and trims the
// trailing NUL padding.
func decryptUserPassword(cipher []byte, secret []byte, authenticator [16]byte) []byte {
	out := make([]byte, len(cipher))
	prev := authenticator[:]
	for i := 0; i+16 <= len(cipher); i += 16 {
		mask := md5Sum(secret, prev)
		xorBlock(out[i:i+16], cipher[i:i+16], mask)
		prev = cipher[i : i+16]
	}
	return trimNUL(out)
}

// encryptTunnelPassword implements RFC 2868 section 3.5: a random
// 2-octet salt (high bit of the first octet set per the RFC) followed
// by a 1-octet length prefix and the password, chained the same way
// as User-Password but seeded with MD5(secret || authenticator ||
// salt) for the first block.
func encryptTunnelPassword(plain []byte, secret []byte, authenticator [16]byte) []byte {
	salt := randomSalt()

	lenPrefixed := make([]byte, 0, len(plain)+1)
	lenPrefixed = append(lenPrefixed, byte(len(plain)))
	lenPrefixed = append(lenPrefixed, plain...)
	padded := padTo16(lenPrefixed)

	out := make([]byte, 2+len(padded))
	copy(out[:2], salt[:])

	prev := append(append([]byte{}, authenticator[:]...), salt[:]...)
	for i := 0; i < len(padded); i += 16 {
		mask := md5Sum(secret, prev)
		xorBlock(out[2+i:2+i+16], padded[i:i+16], mask)
		prev = out[2+i : 2+i+16]
	}
	return out
}

// decryptTunnelPassword reverses encryptTunnelPassword. value is the
// full attribute payload: 1 tag octet, 2 salt octets, then the
// encrypted region.
func decryptTunnelPassword(value []byte, secret []byte, authenticator [16]byte) (tag byte, plain []byte, err error) {
	if len(value) < 1 {
		return 0, nil, newError(MalformedPacket, "tunnel-password attribute empty", nil)
	}
	tag = value[0]
	rest := value[1:]
	if len(rest) < 2 || (len(rest)-2)%16 != 0 {
		return 0, nil, newError(MalformedPacket, "tunnel-password attribute has malformed salt/ciphertext length", nil)
	}
	salt := rest[:2]
	cipher := rest[2:]

	out := make([]byte, len(cipher))
	prev := append(append([]byte{}, authenticator[:]...), salt...)
	for i := 0; i+16 <= len(cipher); i += 16 {
		mask := md5Sum(secret, prev)
		xorBlock(out[i:i+16], cipher[i:i+16], mask)
		prev = cipher[i : i+16]
	}

	if len(out) < 1 {
		return 0, nil, newError(MalformedPacket, "tunnel-password decrypted to zero octets", nil)
	}
	n := int(out[0])
	if n > len(out)-1 {
		return 0, nil, newError(MalformedPacket, "tunnel-password length prefix exceeds decrypted size", nil)
	}
	return tag, out[1 : 1+n], nil
}

// encryptAscendSendSecret implements the Ascend vendor's single-block
// variant (vendor 529, type 214): no padding beyond the fixed 16-octet
// block, a single MD5(secret || authenticator) mask, no chaining.
func encryptAscendSendSecret(plain []byte, secret []byte, authenticator [16]byte) []byte {
	padded := padTo16(plain)
	mask := md5Sum(secret, authenticator[:])
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += 16 {
		end := i + 16
		xorBlock(out[i:end], padded[i:end], mask)
	}
	return out
}

func decryptAscendSendSecret(cipher []byte, secret []byte, authenticator [16]byte) []byte {
	mask := md5Sum(secret, authenticator[:])
	out := make([]byte, len(cipher))
	for i := 0; i+16 <= len(cipher); i += 16 {
		xorBlock(out[i:i+16], cipher[i:i+16], mask)
	}
	return trimNUL(out)
}

func md5Sum(parts ...[]byte) []byte {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

func padTo16(b []byte) []byte {
	n := len(b)
	if n == 0 {
		n = 16
	} else if n%16 != 0 {
		n += 16 - n%16
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func trimNUL(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// messageAuthenticatorZeroValue is what the Message-Authenticator
// attribute's 16-octet value field is set to while computing the
// HMAC over the rest of the packet, per RFC 2869 section 5.14.
var messageAuthenticatorZeroValue [16]byte

// computeMessageAuthenticator returns the HMAC-MD5 of the full packet
// bytes (header + attributes), with the Message-Authenticator
// attribute's value field already zeroed at valueOffset by the
// caller.
func computeMessageAuthenticator(packetBytes []byte, secret []byte) [16]byte {
	mac := hmac.New(md5.New, secret)
	mac.Write(packetBytes)
	var out [16]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func verifyMessageAuthenticator(packetBytes []byte, valueOffset int, claimed [16]byte, secret []byte) bool {
	scratch := make([]byte, len(packetBytes))
	copy(scratch, packetBytes)
	copy(scratch[valueOffset:valueOffset+16], messageAuthenticatorZeroValue[:])
	got := computeMessageAuthenticator(scratch, secret)
	return hmac.Equal(got[:], claimed[:])
}
