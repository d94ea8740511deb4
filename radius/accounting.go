package radius

// NewAccountingRequest builds an Accounting-Request. Unlike
// Access-Request, its Authenticator field is not random: RFC 2866
// section 3 requires it be MD5(Code+Identifier+Length+16 zero
// octets+Attributes+Secret), computed at send time once the secret is
// known. ToBytes computes this automatically for
// CodeAccountingRequest.
func NewAccountingRequest(dict *Dictionary) *Packet {
	return &Packet{Code: CodeAccountingRequest, dict: dict}
}

// NewAccountingResponse builds an Accounting-Response in reply to
// req.
func NewAccountingResponse(req *Packet) (*Packet, error) {
	return req.MakeResponseTo(CodeAccountingResponse)
}
