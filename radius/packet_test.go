package radius

import (
	"bytes"
	"net"
	"testing"
)

func testDictionary(t *testing.T) *Dictionary {
	d := NewDictionary()
	must := func(name string, tpl AttributeTemplate) {
		tpl.Name = name
		if err := d.addAttribute(tpl); err != nil {
			t.Fatalf("adding %s: %v", name, err)
		}
	}
	must("User-Name", AttributeTemplate{Type: 1, DataType: TypeString})
	must("NAS-IP-Address", AttributeTemplate{Type: 4, DataType: TypeIPAddr})
	must("Service-Type", AttributeTemplate{Type: 6, DataType: TypeInteger})
	must("CHAP-Password", AttributeTemplate{Type: 3, DataType: TypeOctets})
	must("CHAP-Challenge", AttributeTemplate{Type: 60, DataType: TypeOctets})
	must("Proxy-State", AttributeTemplate{Type: 33, DataType: TypeOctets})
	must("Framed-IPv6-Prefix", AttributeTemplate{Type: 97, DataType: TypeIPv6Prefix})

	if t1, err := d.TemplateByName("Service-Type"); err == nil {
		t1.EnumByName = map[string]int64{"Login-User": 1}
		t1.EnumByCode = map[int64]string{1: "Login-User"}
	}
	return d
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dict := testDictionary(t)
	secret := []byte("xyzzy5461")

	p, err := NewRequest(CodeAccessRequest, dict)
	if err != nil {
		t.Fatal(err)
	}
	p.Identifier = 42
	if err := p.Add("User-Name", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := p.Add("NAS-IP-Address", net.ParseIP("192.0.2.1")); err != nil {
		t.Fatal(err)
	}
	if err := p.Add("Service-Type", "Login-User"); err != nil {
		t.Fatal(err)
	}

	raw, err := p.ToBytes(secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := FromBytes(raw, dict, secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Get("User-Name").GetString() != "bob" {
		t.Errorf("User-Name = %q", decoded.Get("User-Name").GetString())
	}
	if decoded.Get("Service-Type").GetString() != "Login-User" {
		t.Errorf("Service-Type = %q", decoded.Get("Service-Type").GetString())
	}
	if !decoded.Get("NAS-IP-Address").GetIPAddress().Equal(net.ParseIP("192.0.2.1")) {
		t.Errorf("NAS-IP-Address = %v", decoded.Get("NAS-IP-Address").GetIPAddress())
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	dict := testDictionary(t)
	secret := []byte("secret")

	p, _ := NewRequest(CodeAccountingRequest, dict)
	p.Identifier = 7
	p.Add("User-Name", "alice")

	b1, err := p.ToBytes(secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	b2, err := p.ToBytes(secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Errorf("ToBytes is not idempotent:\n%x\n%x", b1, b2)
	}
}

func TestResponseAuthenticatorLaw(t *testing.T) {
	dict := testDictionary(t)
	secret := []byte("sharedsecret")

	req, _ := NewRequest(CodeAccessRequest, dict)
	req.Identifier = 9
	req.Add("User-Name", "carol")
	reqRaw, err := req.ToBytes(secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	decodedReq, err := FromBytes(reqRaw, dict, secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := NewAccessAccept(decodedReq)
	if err != nil {
		t.Fatal(err)
	}
	resp.Add("Service-Type", "Login-User")
	respRaw, err := resp.ToBytes(secret, decodedReq.Authenticator)
	if err != nil {
		t.Fatal(err)
	}

	decodedResp, err := FromBytes(respRaw, dict, secret, decodedReq.Authenticator)
	if err != nil {
		t.Fatal(err)
	}
	if !decodedResp.ValidateResponseAuthenticator(respRaw, decodedReq.Authenticator, secret) {
		t.Error("response authenticator did not validate")
	}

	// Tampering with the secret must break validation.
	if decodedResp.ValidateResponseAuthenticator(respRaw, decodedReq.Authenticator, []byte("wrong")) {
		t.Error("response authenticator validated with wrong secret")
	}
}

func TestAccountingRequestAuthenticator(t *testing.T) {
	dict := testDictionary(t)
	secret := []byte("sharedsecret")

	req := NewAccountingRequest(dict)
	req.Identifier = 3
	req.Add("User-Name", "dave")

	raw, err := req.ToBytes(secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := FromBytes(raw, dict, secret, [16]byte{})
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.ValidateRequestAuthenticator(raw, secret) {
		t.Error("accounting request authenticator did not validate")
	}
	if decoded.ValidateRequestAuthenticator(raw, []byte("wrong")) {
		t.Error("accounting request authenticator validated with wrong secret")
	}
}

func TestMaxPacketSizeBoundary(t *testing.T) {
	dict := testDictionary(t)
	secret := []byte("secret")

	// n octets attributes with the maximum value length (253), plus one
	// more of `last` value octets, sized to land exactly on
	// MaxPacketSize and one octet past it.
	dict.addAttribute(AttributeTemplate{Type: 200, Name: "Filler", DataType: TypeOctets})

	build := func(n, last int) (*Packet, error) {
		p, _ := NewRequest(CodeAccessRequest, dict)
		p.Identifier = 1
		for i := 0; i < n; i++ {
			if err := p.Add("Filler", bytes.Repeat([]byte{0xAA}, 253)); err != nil {
				return nil, err
			}
		}
		if err := p.Add("Filler", bytes.Repeat([]byte{0xAA}, last)); err != nil {
			return nil, err
		}
		return p, nil
	}

	// headerSize(20) + 15*255 = 3845; 3845 + (2+249) = 4096 exactly.
	p, err := build(15, 249)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.ToBytes(secret, [16]byte{}); err != nil {
		t.Fatalf("expected exactly-fitting packet to encode, got %v", err)
	}

	// 3845 + (2+250) = 4097, one octet over.
	p2, err := build(15, 250)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p2.ToBytes(secret, [16]byte{}); err == nil {
		t.Error("expected over-max packet to fail encoding")
	}
}

func TestFromBytesRejectsTruncatedHeader(t *testing.T) {
	dict := testDictionary(t)
	_, err := FromBytes([]byte{1, 2, 3}, dict, []byte("s"), [16]byte{})
	if err == nil {
		t.Error("expected error decoding truncated header")
	}
	if !IsKind(err, MalformedPacket) {
		t.Errorf("expected MalformedPacket, got %v", err)
	}
}

func TestEchoProxyState(t *testing.T) {
	dict := testDictionary(t)
	req, _ := NewRequest(CodeAccessRequest, dict)
	req.Add("Proxy-State", []byte{0, 0, 0, 1})
	req.Add("Proxy-State", []byte{0, 0, 0, 2})

	resp, err := NewAccessReject(req)
	if err != nil {
		t.Fatal(err)
	}
	EchoProxyState(req, resp)

	got := resp.GetAll("Proxy-State")
	if len(got) != 2 {
		t.Fatalf("expected 2 echoed Proxy-State attributes, got %d", len(got))
	}
	if !bytes.Equal(got[0].GetOctets(), []byte{0, 0, 0, 1}) || !bytes.Equal(got[1].GetOctets(), []byte{0, 0, 0, 2}) {
		t.Error("Proxy-State attributes not echoed in order")
	}
}

func TestFiltered(t *testing.T) {
	dict := testDictionary(t)
	p, _ := NewRequest(CodeAccessRequest, dict)
	p.Add("User-Name", "eve")
	p.Add("Proxy-State", []byte{1})

	stripped := p.Filtered(nil, []string{"Proxy-State"})
	if stripped.Get("Proxy-State") != nil {
		t.Error("Filtered negative list did not drop Proxy-State")
	}
	if stripped.Get("User-Name") == nil {
		t.Error("Filtered negative list dropped an unrelated attribute")
	}

	onlyUser := p.Filtered([]string{"User-Name"}, nil)
	if len(onlyUser.Attributes) != 1 {
		t.Errorf("Filtered positive list: expected 1 attribute, got %d", len(onlyUser.Attributes))
	}
}
