package radius

import "testing"

func attrTestDict(t *testing.T) *Dictionary {
	d := NewDictionary()
	must := func(tpl AttributeTemplate) {
		if err := d.addAttribute(tpl); err != nil {
			t.Fatalf("adding %s: %v", tpl.Name, err)
		}
	}
	must(AttributeTemplate{Type: 64, Name: "Tunnel-Type", DataType: TypeInteger, Tagged: true})
	must(AttributeTemplate{Type: 97, Name: "Framed-IPv6-Prefix", DataType: TypeIPv6Prefix})
	must(AttributeTemplate{Type: 33, Name: "Proxy-State", DataType: TypeOctets})
	return d
}

func TestTaggedIntegerRoundTrip(t *testing.T) {
	d := attrTestDict(t)
	a, err := NewAttribute(d, "Tunnel-Type", "5:2")
	if err != nil {
		t.Fatal(err)
	}
	if !a.HasTag || a.Tag != 2 {
		t.Fatalf("tag not parsed: %+v", a)
	}
	if a.GetInt() != 5 {
		t.Fatalf("value not parsed: %+v", a)
	}

	p, _ := NewRequest(CodeAccessRequest, d)
	if err := p.Add("Tunnel-Type", "5:2"); err != nil {
		t.Fatal(err)
	}
	raw, err := p.ToBytes([]byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := FromBytes(raw, d, []byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.Get("Tunnel-Type")
	if got == nil || !got.HasTag || got.Tag != 2 || got.GetInt() != 5 {
		t.Fatalf("Tunnel-Type round trip = %+v, want tag 2 value 5", got)
	}
}

func TestIPv6PrefixRoundTrip(t *testing.T) {
	d := attrTestDict(t)
	p, _ := NewRequest(CodeAccessRequest, d)
	if err := p.Add("Framed-IPv6-Prefix", "2001:db8::/32"); err != nil {
		t.Fatal(err)
	}
	raw, err := p.ToBytes([]byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := FromBytes(raw, d, []byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.Get("Framed-IPv6-Prefix").GetString()
	if got != "2001:db8::/32" {
		t.Errorf("Framed-IPv6-Prefix round trip = %q", got)
	}
}

func TestIPv6PrefixRejectsBadPrefixLen(t *testing.T) {
	d := attrTestDict(t)
	if _, err := NewAttribute(d, "Framed-IPv6-Prefix", "2001:db8::/999"); err == nil {
		t.Error("expected error for out-of-range prefix length")
	}
}

func TestPeekIdentifier(t *testing.T) {
	d := attrTestDict(t)
	p, _ := NewRequest(CodeAccessRequest, d)
	p.Identifier = 200
	raw, err := p.ToBytes([]byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := PeekIdentifier(raw)
	if err != nil {
		t.Fatal(err)
	}
	if id != 200 {
		t.Errorf("PeekIdentifier = %d, want 200", id)
	}
}

func TestPeekTopLevelAttributeReturnsLast(t *testing.T) {
	d := attrTestDict(t)
	p, _ := NewRequest(CodeAccessRequest, d)
	p.Add("Proxy-State", []byte{1, 1, 1, 1})
	p.Add("Proxy-State", []byte{2, 2, 2, 2})

	raw, err := p.ToBytes([]byte("s"), [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	value, ok := PeekTopLevelAttribute(raw, 33)
	if !ok {
		t.Fatal("expected Proxy-State to be found")
	}
	want := []byte{2, 2, 2, 2}
	for i := range want {
		if value[i] != want[i] {
			t.Fatalf("PeekTopLevelAttribute = % x, want % x", value, want)
		}
	}
}

func TestNewAttributeUnknownName(t *testing.T) {
	d := attrTestDict(t)
	if _, err := NewAttribute(d, "Does-Not-Exist", "x"); !IsKind(err, UnknownAttributeName) {
		t.Errorf("expected UnknownAttributeName, got %v", err)
	}
}
