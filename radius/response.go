package radius

// NewAccessAccept builds an Access-Accept in response to req.
func NewAccessAccept(req *Packet) (*Packet, error) {
	return req.MakeResponseTo(CodeAccessAccept)
}

// NewAccessReject builds an Access-Reject in response to req.
func NewAccessReject(req *Packet) (*Packet, error) {
	return req.MakeResponseTo(CodeAccessReject)
}

// NewAccessChallenge builds an Access-Challenge in response to req.
// Per RFC 2865 section 4.4, the State attribute should be set by the
// caller so a subsequent Access-Request can be correlated to this
// exchange.
func NewAccessChallenge(req *Packet) (*Packet, error) {
	return req.MakeResponseTo(CodeAccessChallenge)
}

// EchoProxyState copies every Proxy-State attribute from req into p,
// in order, per RFC 2865 section 5.33: a server (or proxy) must return
// any Proxy-State attributes it received unchanged in its response.
func EchoProxyState(req *Packet, p *Packet) {
	for _, a := range req.GetAll("Proxy-State") {
		p.Attributes = append(p.Attributes, a)
	}
}
