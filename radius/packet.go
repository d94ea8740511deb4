package radius

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/slices"
)

// Code identifies a RADIUS packet type (RFC 2865/2866/2869 section
// 3/4).
type Code byte

const (
	CodeAccessRequest      Code = 1
	CodeAccessAccept       Code = 2
	CodeAccessReject       Code = 3
	CodeAccountingRequest  Code = 4
	CodeAccountingResponse Code = 5
	CodeAccessChallenge    Code = 11
	CodeStatusServer       Code = 12
	CodeStatusClient       Code = 13
	CodeDisconnectRequest  Code = 40
	CodeDisconnectACK      Code = 41
	CodeDisconnectNAK      Code = 42
	CodeCoARequest         Code = 43
	CodeCoAACK             Code = 44
	CodeCoANAK             Code = 45
)

func (c Code) String() string {
	switch c {
	case CodeAccessRequest:
		return "Access-Request"
	case CodeAccessAccept:
		return "Access-Accept"
	case CodeAccessReject:
		return "Access-Reject"
	case CodeAccountingRequest:
		return "Accounting-Request"
	case CodeAccountingResponse:
		return "Accounting-Response"
	case CodeAccessChallenge:
		return "Access-Challenge"
	case CodeStatusServer:
		return "Status-Server"
	case CodeStatusClient:
		return "Status-Client"
	case CodeDisconnectRequest:
		return "Disconnect-Request"
	case CodeDisconnectACK:
		return "Disconnect-ACK"
	case CodeDisconnectNAK:
		return "Disconnect-NAK"
	case CodeCoARequest:
		return "CoA-Request"
	case CodeCoAACK:
		return "CoA-ACK"
	case CodeCoANAK:
		return "CoA-NAK"
	default:
		return fmt.Sprintf("Code(%d)", byte(c))
	}
}

// MaxPacketSize is the largest wire size a RADIUS packet may declare
// (RFC 2865 section 3).
const MaxPacketSize = 4096

// headerSize is the fixed Code+Identifier+Length+Authenticator region
// that precedes the attribute list on every packet.
const headerSize = 20

// Packet is a decoded RADIUS message. Request packets
// (Access-Request, Accounting-Request, CoA/Disconnect-Request,
// Status-Server/Client) carry a request Authenticator the sender
// picked; response packets carry one computed from the matching
// request, as described on ToBytes below.
type Packet struct {
	Code          Code
	Identifier    byte
	Authenticator [16]byte
	Attributes    []Attribute

	dict *Dictionary
}

// NewRequest creates an empty request packet of the given code with a
// fresh random Authenticator (request codes only; use MakeResponseTo
// for responses).
func NewRequest(code Code, dict *Dictionary) (*Packet, error) {
	if !isRequestCode(code) {
		return nil, fmt.Errorf("%s is not a request code", code)
	}
	p := &Packet{Code: code, dict: dict}
	if hasRandomRequestAuthenticator(code) {
		rand.Read(p.Authenticator[:])
	}
	return p, nil
}

func isRequestCode(c Code) bool {
	switch c {
	case CodeAccessRequest, CodeAccountingRequest, CodeStatusServer, CodeStatusClient,
		CodeDisconnectRequest, CodeCoARequest:
		return true
	}
	return false
}

// hasRandomRequestAuthenticator reports whether a request code's
// Authenticator is an arbitrary client-chosen random value
// (Access-Request, Status-Server/Client) as opposed to one computed
// as a hash over the packet with a zero placeholder (Accounting-
// Request, CoA-Request, Disconnect-Request; RFC 2866 section 3, RFC
// 5176 section 3).
func hasRandomRequestAuthenticator(c Code) bool {
	switch c {
	case CodeAccessRequest, CodeStatusServer, CodeStatusClient:
		return true
	}
	return false
}

// Dictionary returns the dictionary this packet was built or decoded
// with.
func (p *Packet) Dictionary() *Dictionary { return p.dict }

// Add appends an attribute built from a dictionary name and value
// (see NewAttribute).
func (p *Packet) Add(name string, value interface{}) error {
	a, err := NewAttribute(p.dict, name, value)
	if err != nil {
		return err
	}
	p.Attributes = append(p.Attributes, *a)
	return nil
}

// AddVSA appends a Vendor-Specific container with the given children.
func (p *Packet) AddVSA(vendorID uint32, children []Attribute) {
	p.Attributes = append(p.Attributes, Attribute{VendorID: vendorID, Type: 26, Name: "Vendor-Specific", Template: &unknownTemplate, Children: children})
}

// Get returns the first attribute with the given dictionary name, or
// nil if absent.
func (p *Packet) Get(name string) *Attribute {
	for i := range p.Attributes {
		if p.Attributes[i].Name == name {
			return &p.Attributes[i]
		}
	}
	return nil
}

// GetAll returns every attribute with the given dictionary name, in
// wire order.
func (p *Packet) GetAll(name string) []Attribute {
	var out []Attribute
	for i := range p.Attributes {
		if p.Attributes[i].Name == name {
			out = append(out, p.Attributes[i])
		}
	}
	return out
}

// Filtered returns a copy of p with its attribute list restricted to
// (positive) or excluding (negative) the named attributes, generalizing
// the dictionary-driven slice filter the teacher uses for
// proxy attribute stripping.
func (p *Packet) Filtered(positive []string, negative []string) *Packet {
	out := &Packet{Code: p.Code, Identifier: p.Identifier, Authenticator: p.Authenticator, dict: p.dict}
	for _, a := range p.Attributes {
		if len(positive) > 0 && !slices.Contains(positive, a.Name) {
			continue
		}
		if len(negative) > 0 && slices.Contains(negative, a.Name) {
			continue
		}
		out.Attributes = append(out.Attributes, a)
	}
	return out
}

// ToBytes serializes the packet to its wire form, applying any
// password/tunnel-password/Ascend encryption and computing the
// Message-Authenticator attribute (if present) and the packet
// Authenticator, using secret for the remote endpoint.
//
// For Access-Request and Status-Server/Client, p.Authenticator is used
// as-is (callers set it via NewRequest or explicitly for retransmits).
// For Accounting-Request, CoA-Request and Disconnect-Request it is
// computed over the packet with a 16-octet zero placeholder and stored
// back into p.Authenticator; the previous value is not read. For
// response codes, the
// Authenticator is computed as MD5(Code+Identifier+Length+
// RequestAuthenticator+Attributes+Secret) per RFC 2865 section 3 --
// callers normally reach this path via MakeResponseTo.
func (p *Packet) ToBytes(secret []byte, requestAuthenticator [16]byte) ([]byte, error) {
	var attrBuf bytes.Buffer
	authForEncryption := p.Authenticator
	switch {
	case !isRequestCode(p.Code):
		authForEncryption = requestAuthenticator
	case !hasRandomRequestAuthenticator(p.Code):
		authForEncryption = [16]byte{}
	}

	if err := encodeAttributes(&attrBuf, p.Attributes, p.dict, secret, authForEncryption); err != nil {
		return nil, err
	}

	total := headerSize + attrBuf.Len()
	if total > MaxPacketSize {
		return nil, newError(MalformedPacket, fmt.Sprintf("encoded packet length %d exceeds %d", total, MaxPacketSize), nil)
	}

	buf := make([]byte, headerSize, total)
	buf[0] = byte(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	buf = append(buf, attrBuf.Bytes()...)

	maOffset := findMessageAuthenticatorOffset(buf)
	if maOffset >= 0 {
		copy(buf[maOffset:maOffset+16], messageAuthenticatorZeroValue[:])
	}

	switch {
	case isRequestCode(p.Code) && hasRandomRequestAuthenticator(p.Code):
		copy(buf[4:20], p.Authenticator[:])
	case isRequestCode(p.Code):
		// Hashed-authenticator request codes (Accounting-Request,
		// CoA-Request, Disconnect-Request) hash over a zero
		// placeholder, never over a previous encode's result; buf[4:20]
		// is already zero from make, so there is nothing to copy here.
	default:
		copy(buf[4:20], requestAuthenticator[:])
	}

	if maOffset >= 0 {
		mac := computeMessageAuthenticator(buf, secret)
		copy(buf[maOffset:maOffset+16], mac[:])
	}

	if !isRequestCode(p.Code) || !hasRandomRequestAuthenticator(p.Code) {
		h := md5.New()
		h.Write(buf)
		h.Write(secret)
		sum := h.Sum(nil)
		copy(buf[4:20], sum)
		p.Authenticator = [16]byte{}
		copy(p.Authenticator[:], sum)
	}

	return buf, nil
}

// PeekIdentifier reads the wire Identifier field directly, without
// decoding attributes or verifying any authenticator. Used by a
// client socket to correlate an inbound response before it knows
// which secret to decode it with.
func PeekIdentifier(raw []byte) (byte, error) {
	if len(raw) < headerSize {
		return 0, newError(MalformedPacket, "packet shorter than header", nil)
	}
	return raw[1], nil
}

// PeekTopLevelAttribute returns the raw value octets of the last
// top-level attribute of the given type, without needing a dictionary
// or secret. Returns ok=false if none is present. Used to read
// Proxy-State for Strategy B correlation before the response has been
// fully decoded.
func PeekTopLevelAttribute(raw []byte, attrType byte) (value []byte, ok bool) {
	if len(raw) < headerSize {
		return nil, false
	}
	declaredLen := int(binary.BigEndian.Uint16(raw[2:4]))
	if declaredLen < headerSize || declaredLen > len(raw) {
		return nil, false
	}
	raw = raw[:declaredLen]

	var found []byte
	i := headerSize
	for i+2 <= len(raw) {
		t := raw[i]
		l := int(raw[i+1])
		if l < 2 || i+l > len(raw) {
			return found, found != nil
		}
		if t == attrType {
			found = raw[i+2 : i+l]
		}
		i += l
	}
	return found, found != nil
}

// findMessageAuthenticatorOffset returns the byte offset of the
// Message-Authenticator attribute's value field within buf, or -1 if
// absent. buf must already contain the full header and attribute
// region with original (pre-encryption) lengths.
func findMessageAuthenticatorOffset(buf []byte) int {
	i := headerSize
	for i+2 <= len(buf) {
		attrType := buf[i]
		attrLen := int(buf[i+1])
		if attrLen < 2 || i+attrLen > len(buf) {
			return -1
		}
		if attrType == 80 {
			return i + 2
		}
		i += attrLen
	}
	return -1
}

// FromBytes parses a wire-format packet, verifying its declared
// length, decrypting password/tunnel-password/Ascend attributes, and
// (if present) verifying the Message-Authenticator. requestAuthenticator
// is only used when decoding a response packet (it is the
// Authenticator of the request it answers); pass a zero value when
// decoding a request.
func FromBytes(b []byte, dict *Dictionary, secret []byte, requestAuthenticator [16]byte) (*Packet, error) {
	if len(b) < headerSize {
		return nil, newError(MalformedPacket, "packet shorter than header", nil)
	}
	declaredLen := int(binary.BigEndian.Uint16(b[2:4]))
	if declaredLen < headerSize || declaredLen > len(b) || declaredLen > MaxPacketSize {
		return nil, newError(MalformedPacket, fmt.Sprintf("invalid declared length %d", declaredLen), nil)
	}
	b = b[:declaredLen]

	p := &Packet{Code: Code(b[0]), Identifier: b[1], dict: dict}
	copy(p.Authenticator[:], b[4:20])

	authForDecryption := p.Authenticator
	switch {
	case !isRequestCode(p.Code):
		authForDecryption = requestAuthenticator
	case !hasRandomRequestAuthenticator(p.Code):
		authForDecryption = [16]byte{}
	}

	if maOffset := findMessageAuthenticatorOffset(b); maOffset >= 0 {
		var claimed [16]byte
		copy(claimed[:], b[maOffset:maOffset+16])
		// The HMAC is computed with the same header authenticator that
		// ToBytes used: the request's for a response, zeros for a
		// hashed-authenticator request.
		macInput := make([]byte, len(b))
		copy(macInput, b)
		copy(macInput[4:20], authForDecryption[:])
		if !verifyMessageAuthenticator(macInput, maOffset, claimed, secret) {
			return nil, newError(AuthenticatorInvalid, "Message-Authenticator mismatch", nil)
		}
	}

	attrs, err := decodeAttributes(b[headerSize:], dict, secret, authForDecryption)
	if err != nil {
		return nil, err
	}
	p.Attributes = attrs
	return p, nil
}

// ValidateResponseAuthenticator checks that a response packet's
// Authenticator matches MD5(Code+Identifier+Length+
// RequestAuthenticator+ResponseAttributes+Secret), per RFC 2865
// section 3.
func (p *Packet) ValidateResponseAuthenticator(raw []byte, requestAuthenticator [16]byte, secret []byte) bool {
	if len(raw) < headerSize {
		return false
	}
	scratch := make([]byte, len(raw))
	copy(scratch, raw)
	copy(scratch[4:20], requestAuthenticator[:])
	h := md5.New()
	h.Write(scratch)
	h.Write(secret)
	sum := h.Sum(nil)
	return bytes.Equal(sum, p.Authenticator[:])
}

// ValidateRequestAuthenticator checks a hashed-authenticator request
// (Accounting-Request, CoA-Request, Disconnect-Request) against
// MD5(Code+Identifier+Length+16 zero octets+Attributes+Secret), per
// RFC 2866 section 4. Access-Request/Status-Server/Status-Client use
// an arbitrary client-chosen Authenticator and have nothing to
// validate here.
func (p *Packet) ValidateRequestAuthenticator(raw []byte, secret []byte) bool {
	if hasRandomRequestAuthenticator(p.Code) || len(raw) < headerSize {
		return false
	}
	scratch := make([]byte, len(raw))
	copy(scratch, raw)
	for i := 4; i < 20; i++ {
		scratch[i] = 0
	}
	h := md5.New()
	h.Write(scratch)
	h.Write(secret)
	sum := h.Sum(nil)
	return bytes.Equal(sum, p.Authenticator[:])
}

// MakeResponseTo builds an empty response packet correlated to
// request req: same Identifier, and req's Authenticator copied into
// the new packet. ToBytes does not read that copy for a response: it
// takes the request Authenticator as an argument and overwrites
// p.Authenticator with the computed response Authenticator.
func (req *Packet) MakeResponseTo(code Code) (*Packet, error) {
	if isRequestCode(code) {
		return nil, fmt.Errorf("%s is a request code, not a response code", code)
	}
	return &Packet{Code: code, Identifier: req.Identifier, Authenticator: req.Authenticator, dict: req.dict}, nil
}

// Copy returns a copy of the packet with its own attribute slice, so
// attributes can be added or removed without affecting p. The
// attributes themselves are copied shallowly: byte-slice values and
// Vendor-Specific Children are shared with p.
func (p *Packet) Copy() *Packet {
	out := &Packet{Code: p.Code, Identifier: p.Identifier, Authenticator: p.Authenticator, dict: p.dict}
	out.Attributes = append(out.Attributes, p.Attributes...)
	return out
}
