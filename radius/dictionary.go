package radius

import "fmt"

// AttrDataType is the value encoding of an attribute, derived from the
// dictionary's data-type column. Unknown dictionary types fall back to
// Octets.
type AttrDataType int

const (
	TypeOctets AttrDataType = iota
	TypeString
	TypeInteger
	TypeIPAddr
	TypeIPv6Addr
	TypeIPv6Prefix
	TypeDate
	TypeIfID
	TypeInteger64
	TypeVSA
)

// CodecType is the password/attribute encryption scheme applied to an
// attribute's value on the wire, per spec.md section 4.2.
type CodecType int

const (
	CodecNone CodecType = iota
	CodecUserPassword
	CodecTunnelPassword
	CodecAscendSendSecret
)

// AttrKey identifies a dictionary entry: top-level attributes use
// VendorID == 0.
type AttrKey struct {
	VendorID uint32
	Type     uint32
}

// AttributeTemplate is a dictionary entry: the static shape of an
// attribute, shared read-only once the Dictionary is built.
type AttributeTemplate struct {
	VendorID uint32
	Type     uint32
	Name     string
	DataType AttrDataType
	Codec    CodecType
	Tagged   bool

	EnumByName map[string]int64
	EnumByCode map[int64]string
}

func (t *AttributeTemplate) enumValue(name string) (int64, bool) {
	if t.EnumByName == nil {
		return 0, false
	}
	v, ok := t.EnumByName[name]
	return v, ok
}

func (t *AttributeTemplate) enumName(value int64) (string, bool) {
	if t.EnumByCode == nil {
		return "", false
	}
	n, ok := t.EnumByCode[value]
	return n, ok
}

// Vendor describes a vendor-specific attribute namespace: how many
// octets its sub-attribute type and length fields occupy on the wire.
// Defaults (RFC 2865 section 5.26) are TypeSize=1, LengthSize=1.
type Vendor struct {
	ID         uint32
	Name       string
	TypeSize   int // 1, 2 or 4
	LengthSize int // 0, 1 or 2
}

func (v *Vendor) headerSize() int {
	return v.TypeSize + v.LengthSize
}

// unknownTemplate is handed back (with an error) when a code is not in
// the dictionary, so callers that want to proceed anyway can treat the
// attribute as opaque octets.
var unknownTemplate = AttributeTemplate{Name: "Unknown", DataType: TypeOctets}

// Dictionary resolves attribute type codes and vendor ids to names,
// data types, and encoding rules. Built once at startup and shared
// read-only: no method on Dictionary mutates it after Load* returns,
// so concurrent lookups from multiple goroutines are safe.
type Dictionary struct {
	vendorsByID   map[uint32]*Vendor
	vendorsByName map[string]*Vendor

	attrsByKey  map[AttrKey]*AttributeTemplate
	attrsByName map[string]*AttributeTemplate
}

// NewDictionary returns an empty dictionary pre-populated with the
// attributes every RADIUS implementation must special-case per
// spec.md section 4.1 (Message-Authenticator, User-Password,
// Tunnel-Password, and the Ascend vendor's Send-Secret).
func NewDictionary() *Dictionary {
	d := &Dictionary{
		vendorsByID:   make(map[uint32]*Vendor),
		vendorsByName: make(map[string]*Vendor),
		attrsByKey:    make(map[AttrKey]*AttributeTemplate),
		attrsByName:   make(map[string]*AttributeTemplate),
	}

	d.vendorsByID[ascendVendorID] = &Vendor{ID: ascendVendorID, Name: "Ascend", TypeSize: 1, LengthSize: 1}
	d.vendorsByName["Ascend"] = d.vendorsByID[ascendVendorID]

	must := func(t AttributeTemplate) {
		if err := d.addAttribute(t); err != nil {
			panic(err)
		}
	}

	must(AttributeTemplate{Type: 80, Name: "Message-Authenticator", DataType: TypeOctets, Codec: CodecNone})
	must(AttributeTemplate{Type: 2, Name: "User-Password", DataType: TypeString, Codec: CodecUserPassword})
	must(AttributeTemplate{Type: 69, Name: "Tunnel-Password", DataType: TypeString, Codec: CodecTunnelPassword, Tagged: true})
	must(AttributeTemplate{VendorID: ascendVendorID, Type: 214, Name: "Ascend-Send-Secret", DataType: TypeOctets, Codec: CodecAscendSendSecret})

	return d
}

const ascendVendorID = 529

// isBuiltinSpecialKey reports whether key is one of the four
// attributes NewDictionary pre-registers and addAttribute always
// forces the codec/type of. A dictionary file is allowed to redeclare
// one of these (many FreeRADIUS dictionaries do, for documentation
// purposes); that redeclaration overwrites the built-in entry rather
// than erroring as a duplicate, since its codec gets forced back to
// the built-in one anyway.
func isBuiltinSpecialKey(key AttrKey) bool {
	switch key {
	case AttrKey{0, 80}, AttrKey{0, 2}, AttrKey{0, 69}, AttrKey{ascendVendorID, 214}:
		return true
	}
	return false
}

func (d *Dictionary) addAttribute(t AttributeTemplate) error {
	key := AttrKey{VendorID: t.VendorID, Type: t.Type}
	redeclareBuiltin := isBuiltinSpecialKey(key)
	if _, found := d.attrsByKey[key]; found && !redeclareBuiltin {
		return fmt.Errorf("duplicate attribute (vendor %d, type %d)", t.VendorID, t.Type)
	}
	if _, found := d.attrsByName[t.Name]; found && !redeclareBuiltin {
		return fmt.Errorf("duplicate attribute name %q", t.Name)
	}

	// Enforce the four always-special attributes regardless of what
	// a dictionary file tries to declare for them.
	switch key {
	case AttrKey{0, 80}:
		t.Codec = CodecNone
	case AttrKey{0, 2}:
		t.Codec = CodecUserPassword
		t.DataType = TypeString
	case AttrKey{0, 69}:
		t.Codec = CodecTunnelPassword
		t.Tagged = true
	case AttrKey{ascendVendorID, 214}:
		t.Codec = CodecAscendSendSecret
	}

	tp := t
	d.attrsByKey[key] = &tp
	d.attrsByName[tp.Name] = &tp
	return nil
}

func (d *Dictionary) addVendor(v Vendor) error {
	// The Ascend vendor is pre-registered by NewDictionary; a dictionary
	// file may declare it again under the same name, which replaces the
	// built-in entry instead of failing as a duplicate.
	existing, found := d.vendorsByID[v.ID]
	redeclareBuiltin := found && v.ID == ascendVendorID && existing.Name == v.Name
	if found && !redeclareBuiltin {
		return fmt.Errorf("duplicate vendor id %d", v.ID)
	}
	if _, found := d.vendorsByName[v.Name]; found && !redeclareBuiltin {
		return fmt.Errorf("duplicate vendor name %q", v.Name)
	}
	if v.TypeSize == 0 {
		v.TypeSize = 1
	}
	vp := v
	d.vendorsByID[v.ID] = &vp
	d.vendorsByName[v.Name] = &vp
	return nil
}

// VendorByID looks up a vendor by its SMI network enterprise number.
func (d *Dictionary) VendorByID(id uint32) (*Vendor, bool) {
	v, ok := d.vendorsByID[id]
	return v, ok
}

// VendorByName looks up a vendor by name.
func (d *Dictionary) VendorByName(name string) (*Vendor, bool) {
	v, ok := d.vendorsByName[name]
	return v, ok
}

// TemplateByKey looks up an attribute template by (vendor id, type).
// If not found, returns the generic octets fallback and a non-nil
// error; callers that want to decode defensively use the returned
// template anyway.
func (d *Dictionary) TemplateByKey(key AttrKey) (*AttributeTemplate, error) {
	if t, ok := d.attrsByKey[key]; ok {
		return t, nil
	}
	return &unknownTemplate, fmt.Errorf("attribute (vendor %d, type %d) not found in dictionary", key.VendorID, key.Type)
}

// TemplateByName looks up an attribute template by its dictionary
// name.
func (d *Dictionary) TemplateByName(name string) (*AttributeTemplate, error) {
	if t, ok := d.attrsByName[name]; ok {
		return t, nil
	}
	return &unknownTemplate, newError(UnknownAttributeName, name, nil)
}
