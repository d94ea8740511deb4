package radius

import (
	"crypto/md5"
)

// AuthMethod classifies which authentication scheme an Access-Request
// carries, per spec.md section 4.4.
type AuthMethod int

const (
	AuthUnknown AuthMethod = iota
	AuthPAP
	AuthCHAP
	AuthEAP
	AuthARAP
	AuthMSCHAPv2
)

func (m AuthMethod) String() string {
	switch m {
	case AuthPAP:
		return "PAP"
	case AuthCHAP:
		return "CHAP"
	case AuthEAP:
		return "EAP"
	case AuthARAP:
		return "ARAP"
	case AuthMSCHAPv2:
		return "MS-CHAPv2"
	default:
		return "Unknown"
	}
}

// AuthMethod inspects an Access-Request's attributes and reports which
// authentication scheme it carries. PAP is User-Password, CHAP is
// CHAP-Password (CHAP-Challenge is not required), EAP is EAP-Message, ARAP is
// ARAP-Password, MS-CHAPv2 is the Microsoft vendor (311)
// MS-CHAP2-Response attribute. If more than one marker attribute is
// present, the first match in that precedence order wins.
func (p *Packet) AuthMethod() AuthMethod {
	if p.Get("User-Password") != nil {
		return AuthPAP
	}
	if p.Get("CHAP-Password") != nil {
		return AuthCHAP
	}
	if p.Get("EAP-Message") != nil {
		return AuthEAP
	}
	if p.Get("ARAP-Password") != nil {
		return AuthARAP
	}
	for _, a := range p.Attributes {
		if a.VendorID == 311 && a.Type == 25 {
			return AuthMSCHAPv2
		}
	}
	return AuthUnknown
}

// VerifyPassword checks the Access-Request's credential against the
// cleartext password, dispatching on AuthMethod(). PAP compares the
// User-Password value, which FromBytes has already decrypted, directly
// (secret is not used); CHAP recomputes
// MD5(Identifier || password || Challenge) and compares against
// CHAP-Password. EAP, ARAP, and MS-CHAPv2 are structure-only in this
// implementation (spec.md section 9): VerifyPassword on those returns
// an *Error of kind UnsupportedAuth rather than attempting the exchange.
func (p *Packet) VerifyPassword(password string, secret []byte) (bool, error) {
	switch p.AuthMethod() {
	case AuthPAP:
		up := p.Get("User-Password")
		if up == nil {
			return false, newError(MalformedPacket, "no User-Password attribute", nil)
		}
		return up.GetString() == password, nil

	case AuthCHAP:
		return p.verifyCHAP(password)

	case AuthEAP, AuthARAP, AuthMSCHAPv2:
		return false, newError(UnsupportedAuth, p.AuthMethod().String(), nil)

	default:
		return false, newError(UnsupportedAuth, "no recognized credential attribute", nil)
	}
}

func (p *Packet) verifyCHAP(password string) (bool, error) {
	chapPw := p.Get("CHAP-Password")
	if chapPw == nil {
		return false, newError(MalformedPacket, "no CHAP-Password attribute", nil)
	}
	pwBytes := chapPw.GetOctets()
	if len(pwBytes) != 17 {
		return false, newError(MalformedPacket, "CHAP-Password must be 17 octets (ident+digest)", nil)
	}
	chapID := pwBytes[0]
	digest := pwBytes[1:]

	challenge := p.Authenticator[:]
	if cc := p.Get("CHAP-Challenge"); cc != nil {
		challenge = cc.GetOctets()
	}

	h := md5.New()
	h.Write([]byte{chapID})
	h.Write([]byte(password))
	h.Write(challenge)
	sum := h.Sum(nil)

	if len(sum) != len(digest) {
		return false, nil
	}
	match := true
	for i := range sum {
		if sum[i] != digest[i] {
			match = false
		}
	}
	return match, nil
}
