package radius

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Attribute is a single TLV, or a Vendor-Specific container of
// sub-attributes. The recursion depth is capped at two layers
// (top-level + one VSA layer), matching spec.md section 9's guidance:
// a VendorSpecific attribute's Children are always plain attributes,
// never another VendorSpecific.
type Attribute struct {
	VendorID uint32 // 0 for top-level (RFC 2865) attributes
	Type     uint32
	Name     string
	Tag      byte
	HasTag   bool

	// Value holds the decoded value: []byte, string, int64, net.IP, or
	// time.Time depending on Template.DataType. For a VendorSpecific
	// attribute (Type 26, VendorID != 0, Children != nil), Value is
	// unused.
	Value interface{}

	// Children holds the sub-attributes of a Vendor-Specific
	// container. Nil for plain attributes.
	Children []Attribute

	// Template is the dictionary entry this attribute was built from.
	// Never nil after NewAttribute/decode (falls back to a synthetic
	// octets template for unknown codes).
	Template *AttributeTemplate
}

// IsVendorSpecific reports whether this is a VSA container.
func (a *Attribute) IsVendorSpecific() bool {
	return a.Children != nil
}

// NewAttribute creates an attribute from a dictionary name and a
// value. Strings are parsed per the attribute's data type (spec.md
// section 4.2); other Go types must already match the data type's
// native representation.
func NewAttribute(dict *Dictionary, name string, value interface{}) (*Attribute, error) {
	t, err := dict.TemplateByName(name)
	if err != nil {
		return nil, err
	}

	a := &Attribute{VendorID: t.VendorID, Type: t.Type, Name: t.Name, Template: t}

	sval, isString := value.(string)
	if t.Tagged {
		if !isString {
			return nil, fmt.Errorf("%s is tagged: value must be given as \"value:tag\"", name)
		}
		parts := strings.SplitN(sval, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s is tagged but no tag found in %q", name, sval)
		}
		tag, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("could not parse tag %q: %w", parts[1], err)
		}
		a.Tag = byte(tag)
		a.HasTag = true
		sval = parts[0]
		isString = true
		value = sval
	}

	v, err := parseValue(t, value, sval, isString)
	if err != nil {
		return nil, err
	}
	a.Value = v
	return a, nil
}

func parseValue(t *AttributeTemplate, value interface{}, sval string, isString bool) (interface{}, error) {
	switch t.DataType {
	case TypeString:
		if !isString {
			return nil, fmt.Errorf("%s: expected string value", t.Name)
		}
		if len(sval) < 1 {
			return nil, fmt.Errorf("%s: string value must have at least one octet", t.Name)
		}
		return sval, nil

	case TypeOctets:
		if isString {
			b, err := hexDecode(sval)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t.Name, err)
			}
			return b, nil
		}
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("%s: expected []byte or hex string", t.Name)
		}
		return b, nil

	case TypeInteger, TypeInteger64:
		if isString {
			if n, ok := t.enumValue(sval); ok {
				return n, nil
			}
			n, err := parseIntLiteral(sval)
			if err != nil {
				return nil, fmt.Errorf("%s: could not parse %q as integer: %w", t.Name, sval, err)
			}
			return n, nil
		}
		n, err := toInt64(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		return n, nil

	case TypeIPAddr, TypeIPv6Addr:
		if isString {
			ip := net.ParseIP(sval)
			if ip == nil {
				return nil, fmt.Errorf("%s: invalid IP address %q", t.Name, sval)
			}
			return ip, nil
		}
		ip, ok := value.(net.IP)
		if !ok {
			return nil, fmt.Errorf("%s: expected net.IP", t.Name)
		}
		return ip, nil

	case TypeIPv6Prefix:
		if !isString {
			return nil, fmt.Errorf("%s: expected \"addr/prefixlen\" string", t.Name)
		}
		if err := validateIPv6Prefix(sval); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
		return sval, nil

	case TypeDate:
		if isString {
			tm, err := time.Parse(time.RFC3339, sval)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t.Name, err)
			}
			return tm, nil
		}
		tm, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%s: expected time.Time", t.Name)
		}
		return tm, nil

	case TypeIfID:
		b, ok := value.([]byte)
		if !ok || len(b) != 8 {
			return nil, fmt.Errorf("%s: interface id must be 8 octets", t.Name)
		}
		return b, nil
	}

	return nil, fmt.Errorf("%s: unsupported data type %v", t.Name, t.DataType)
}

func validateIPv6Prefix(s string) error {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected addr/prefix-len, got %q", s)
	}
	if net.ParseIP(parts[0]) == nil {
		return fmt.Errorf("invalid address %q", parts[0])
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 || n > 128 {
		return fmt.Errorf("invalid prefix length %q", parts[1])
	}
	return nil
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

// GetString renders the attribute's value as a display string,
// resolving enumerations when the dictionary defines one.
func (a *Attribute) GetString() string {
	switch a.Template.DataType {
	case TypeString, TypeIPv6Prefix:
		s, _ := a.Value.(string)
		return s
	case TypeOctets, TypeIfID:
		b, _ := a.Value.([]byte)
		return fmt.Sprintf("%x", b)
	case TypeInteger, TypeInteger64:
		n, _ := a.Value.(int64)
		if name, ok := a.Template.enumName(n); ok {
			return name
		}
		return strconv.FormatInt(n, 10)
	case TypeIPAddr, TypeIPv6Addr:
		ip, _ := a.Value.(net.IP)
		return ip.String()
	case TypeDate:
		tm, _ := a.Value.(time.Time)
		return tm.Format(time.RFC3339)
	}
	return ""
}

// GetInt returns the attribute's integer value, or 0 if it is not an
// integer-typed attribute.
func (a *Attribute) GetInt() int64 {
	n, _ := a.Value.(int64)
	return n
}

// GetOctets returns the attribute's raw octet value.
func (a *Attribute) GetOctets() []byte {
	b, _ := a.Value.([]byte)
	return b
}

// GetIPAddress returns the attribute's IP address value.
func (a *Attribute) GetIPAddress() net.IP {
	ip, _ := a.Value.(net.IP)
	return ip
}

// encodedLen returns the size of this attribute's wire encoding,
// including its header, tag, and any encryption padding, for the
// given vendor framing (nil means top-level / standard RFC 2865
// framing).
func (a *Attribute) encodedLen(v *Vendor) (int, error) {
	payloadLen, err := plainValueLen(a)
	if err != nil {
		return 0, err
	}

	size := payloadLen
	if a.HasTag && a.Template.Codec != CodecTunnelPassword {
		size++
	}
	if a.Template.Codec == CodecTunnelPassword {
		size++ // length-prefix byte inside the encrypted region
	}
	if a.Template.Codec != CodecNone && size%16 != 0 {
		size += 16 - size%16
	}
	if a.Template.Codec == CodecTunnelPassword {
		size += 3 // tag octet and salt, outside the encrypted region
	}

	headerSize := 2
	if v != nil {
		headerSize = v.headerSize()
	}
	size += headerSize

	return size, nil
}

func plainValueLen(a *Attribute) (int, error) {
	switch a.Template.DataType {
	case TypeString:
		s, _ := a.Value.(string)
		return len(s), nil
	case TypeOctets, TypeIfID:
		b, _ := a.Value.([]byte)
		return len(b), nil
	case TypeInteger:
		if a.HasTag && a.Template.Codec == CodecNone {
			return 3, nil
		}
		return 4, nil
	case TypeInteger64:
		return 8, nil
	case TypeIPAddr:
		return 4, nil
	case TypeIPv6Addr:
		return 16, nil
	case TypeIPv6Prefix:
		return 18, nil
	case TypeDate:
		return 4, nil
	}
	return 0, fmt.Errorf("%s: cannot size data type %v", a.Template.Name, a.Template.DataType)
}

// writePlainValue serializes the decoded Go value to its RFC wire
// representation, without any tag/salt/encryption framing.
func writePlainValue(w *bytes.Buffer, a *Attribute) error {
	switch a.Template.DataType {
	case TypeString:
		s, _ := a.Value.(string)
		w.WriteString(s)
	case TypeOctets, TypeIfID:
		b, _ := a.Value.([]byte)
		w.Write(b)
	case TypeInteger:
		n, _ := a.Value.(int64)
		if a.HasTag && a.Template.Codec == CodecNone {
			w.WriteByte(byte(n >> 16))
			binary.Write(w, binary.BigEndian, uint16(n))
		} else {
			binary.Write(w, binary.BigEndian, int32(n))
		}
	case TypeInteger64:
		n, _ := a.Value.(int64)
		binary.Write(w, binary.BigEndian, n)
	case TypeIPAddr:
		ip, _ := a.Value.(net.IP)
		ip4 := ip.To4()
		if ip4 == nil {
			return fmt.Errorf("%s: not an IPv4 address", a.Template.Name)
		}
		w.Write(ip4)
	case TypeIPv6Addr:
		ip, _ := a.Value.(net.IP)
		ip16 := ip.To16()
		if ip16 == nil {
			return fmt.Errorf("%s: not an IPv6 address", a.Template.Name)
		}
		w.Write(ip16)
	case TypeIPv6Prefix:
		s, _ := a.Value.(string)
		parts := strings.SplitN(s, "/", 2)
		prefixLen, _ := strconv.Atoi(parts[1])
		ip := net.ParseIP(parts[0]).To16()
		w.WriteByte(0)
		w.WriteByte(byte(prefixLen))
		w.Write(ip)
	case TypeDate:
		tm, _ := a.Value.(time.Time)
		binary.Write(w, binary.BigEndian, uint32(tm.Unix()))
	default:
		return fmt.Errorf("%s: cannot encode data type %v", a.Template.Name, a.Template.DataType)
	}
	return nil
}

// readPlainValue parses a value of the given length from b into the
// attribute's Value, per the attribute's data type.
func readPlainValue(a *Attribute, b []byte) error {
	switch a.Template.DataType {
	case TypeString:
		a.Value = string(bytes.TrimRight(b, "\x00"))
	case TypeOctets, TypeIfID:
		a.Value = append([]byte(nil), b...)
	case TypeInteger:
		if a.HasTag && a.Template.Codec == CodecNone {
			if len(b) != 3 {
				return fmt.Errorf("%s: tagged integer must be 3 octets", a.Template.Name)
			}
			a.Value = int64(b[0])<<16 | int64(b[1])<<8 | int64(b[2])
		} else {
			if len(b) != 4 {
				return fmt.Errorf("%s: integer must be 4 octets", a.Template.Name)
			}
			a.Value = int64(int32(binary.BigEndian.Uint32(b)))
		}
	case TypeInteger64:
		if len(b) != 8 {
			return fmt.Errorf("%s: integer64 must be 8 octets", a.Template.Name)
		}
		a.Value = int64(binary.BigEndian.Uint64(b))
	case TypeIPAddr:
		if len(b) != 4 {
			return fmt.Errorf("%s: ipaddr must be 4 octets", a.Template.Name)
		}
		a.Value = net.IP(append([]byte(nil), b...))
	case TypeIPv6Addr:
		if len(b) != 16 {
			return fmt.Errorf("%s: ipv6addr must be 16 octets", a.Template.Name)
		}
		a.Value = net.IP(append([]byte(nil), b...))
	case TypeIPv6Prefix:
		if len(b) < 2 || len(b) > 18 {
			return fmt.Errorf("%s: ipv6prefix length out of range", a.Template.Name)
		}
		prefixLen := b[1]
		addr := make([]byte, 16)
		copy(addr, b[2:])
		a.Value = net.IP(addr).String() + "/" + strconv.Itoa(int(prefixLen))
	case TypeDate:
		if len(b) != 4 {
			return fmt.Errorf("%s: date must be 4 octets", a.Template.Name)
		}
		a.Value = time.Unix(int64(binary.BigEndian.Uint32(b)), 0).UTC()
	default:
		return fmt.Errorf("%s: cannot decode data type %v", a.Template.Name, a.Template.DataType)
	}
	return nil
}

// maxVSADepth bounds Vendor-Specific nesting: a VendorSpecific
// attribute's Children are always plain attributes, never another
// VendorSpecific (spec.md section 9).
const maxVSADepth = 2

// encodeAttributes writes attrs to w using standard (1,1) RFC 2865
// framing for top-level attributes and per-vendor framing for any
// Vendor-Specific container's children.
func encodeAttributes(w *bytes.Buffer, attrs []Attribute, dict *Dictionary, secret []byte, authenticator [16]byte) error {
	for i := range attrs {
		if err := encodeOne(w, &attrs[i], dict, nil, secret, authenticator, 1); err != nil {
			return err
		}
	}
	return nil
}

func encodeOne(w *bytes.Buffer, a *Attribute, dict *Dictionary, vendor *Vendor, secret []byte, authenticator [16]byte, depth int) error {
	if a.IsVendorSpecific() {
		if depth >= maxVSADepth {
			return fmt.Errorf("vendor-specific nesting exceeds depth %d", maxVSADepth)
		}
		v, ok := dict.VendorByID(a.VendorID)
		if !ok {
			return fmt.Errorf("attribute %d: vendor %d not in dictionary", a.Type, a.VendorID)
		}

		var inner bytes.Buffer
		for i := range a.Children {
			if err := encodeOne(&inner, &a.Children[i], dict, v, secret, authenticator, depth+1); err != nil {
				return err
			}
		}

		w.WriteByte(26) // Vendor-Specific
		w.WriteByte(byte(6 + inner.Len()))
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], a.VendorID)
		w.Write(idBuf[:])
		w.Write(inner.Bytes())
		return nil
	}

	var payload bytes.Buffer
	if err := writePlainValue(&payload, a); err != nil {
		return err
	}
	body := payload.Bytes()

	switch a.Template.Codec {
	case CodecUserPassword:
		if a.HasTag {
			body = append([]byte{a.Tag}, body...)
		}
		body = encryptUserPassword(body, secret, authenticator)
	case CodecTunnelPassword:
		// RFC 2868: the tag octet precedes the salt + encrypted
		// region, it is never itself encrypted.
		enc := encryptTunnelPassword(body, secret, authenticator)
		body = append([]byte{a.Tag}, enc...)
	case CodecAscendSendSecret:
		body = encryptAscendSendSecret(body, secret, authenticator)
	default:
		if a.HasTag {
			body = append([]byte{a.Tag}, body...)
		}
	}

	if vendor == nil {
		if len(body)+2 > 255 {
			return fmt.Errorf("attribute %s: encoded length %d exceeds 253 octets", a.Template.Name, len(body))
		}
		w.WriteByte(byte(a.Type))
		w.WriteByte(byte(len(body) + 2))
		w.Write(body)
		return nil
	}

	writeVendorHeader(w, vendor, a.Type, len(body)+vendor.headerSize())
	w.Write(body)
	return nil
}

func writeVendorHeader(w *bytes.Buffer, v *Vendor, attrType uint32, totalLen int) {
	switch v.TypeSize {
	case 1:
		w.WriteByte(byte(attrType))
	case 2:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(attrType))
		w.Write(b[:])
	case 4:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], attrType)
		w.Write(b[:])
	}
	switch v.LengthSize {
	case 1:
		w.WriteByte(byte(totalLen))
	case 2:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(totalLen))
		w.Write(b[:])
	}
}

// decodeAttributes parses the attribute region of a packet body (the
// bytes following the 20-octet header) into a flat slice of
// top-level Attributes, expanding Vendor-Specific containers into
// Children one level deep.
func decodeAttributes(b []byte, dict *Dictionary, secret []byte, authenticator [16]byte) ([]Attribute, error) {
	var attrs []Attribute
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, newError(MalformedPacket, "truncated attribute header", nil)
		}
		attrType := b[0]
		attrLen := int(b[1])
		if attrLen < 2 || attrLen > len(b) {
			return nil, newError(MalformedPacket, fmt.Sprintf("attribute %d: invalid length %d", attrType, attrLen), nil)
		}
		value := b[2:attrLen]
		b = b[attrLen:]

		if attrType == 26 {
			a, err := decodeVendorSpecific(value, dict, secret, authenticator)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, *a)
			continue
		}

		a, err := decodePlainAttribute(0, uint32(attrType), value, dict, secret, authenticator)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, *a)
	}
	return attrs, nil
}

func decodeVendorSpecific(b []byte, dict *Dictionary, secret []byte, authenticator [16]byte) (*Attribute, error) {
	if len(b) < 4 {
		return nil, newError(MalformedPacket, "vendor-specific attribute too short for vendor id", nil)
	}
	vendorID := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	v, ok := dict.VendorByID(vendorID)
	if !ok {
		v = &Vendor{ID: vendorID, TypeSize: 1, LengthSize: 1}
	}

	a := &Attribute{VendorID: vendorID, Type: 26, Name: "Vendor-Specific", Template: &unknownTemplate, Children: []Attribute{}}

	for len(b) > 0 {
		hs := v.headerSize()
		if len(b) < hs {
			return nil, newError(MalformedPacket, "vendor-specific sub-attribute truncated", nil)
		}
		var subType uint32
		switch v.TypeSize {
		case 1:
			subType = uint32(b[0])
		case 2:
			subType = uint32(binary.BigEndian.Uint16(b[:2]))
		case 4:
			subType = binary.BigEndian.Uint32(b[:4])
		}

		var totalLen int
		switch v.LengthSize {
		case 0:
			totalLen = len(b)
		case 1:
			totalLen = int(b[v.TypeSize])
		case 2:
			totalLen = int(binary.BigEndian.Uint16(b[v.TypeSize : v.TypeSize+2]))
		}
		if totalLen < hs || totalLen > len(b) {
			return nil, newError(MalformedPacket, fmt.Sprintf("vendor %d sub-attribute %d: invalid length %d", vendorID, subType, totalLen), nil)
		}

		sub, err := decodePlainAttribute(vendorID, subType, b[hs:totalLen], dict, secret, authenticator)
		if err != nil {
			return nil, err
		}
		a.Children = append(a.Children, *sub)
		b = b[totalLen:]
	}

	return a, nil
}

func decodePlainAttribute(vendorID, attrType uint32, value []byte, dict *Dictionary, secret []byte, authenticator [16]byte) (*Attribute, error) {
	t, err := dict.TemplateByKey(AttrKey{VendorID: vendorID, Type: attrType})
	if err != nil {
		t = &AttributeTemplate{VendorID: vendorID, Type: attrType, Name: fmt.Sprintf("Unknown-%d-%d", vendorID, attrType), DataType: TypeOctets}
	}

	a := &Attribute{VendorID: vendorID, Type: attrType, Name: t.Name, Template: t}

	switch t.Codec {
	case CodecUserPassword:
		value = decryptUserPassword(value, secret, authenticator)
	case CodecTunnelPassword:
		tag, plain, err := decryptTunnelPassword(value, secret, authenticator)
		if err != nil {
			return nil, err
		}
		a.Tag = tag
		a.HasTag = true
		if err := readPlainValue(a, plain); err != nil {
			return nil, err
		}
		return a, nil
	case CodecAscendSendSecret:
		value = decryptAscendSendSecret(value, secret, authenticator)
	}

	if t.Tagged {
		if len(value) < 1 {
			return nil, newError(MalformedPacket, fmt.Sprintf("%s: tagged attribute has no tag octet", t.Name), nil)
		}
		a.Tag = value[0]
		a.HasTag = true
		value = value[1:]
	}

	if err := readPlainValue(a, value); err != nil {
		return nil, newError(MalformedPacket, err.Error(), err)
	}
	return a, nil
}
