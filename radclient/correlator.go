// Package radclient sends RADIUS requests and matches inbound
// responses back to the outstanding request that produced them.
package radclient

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/relaycore/radius/radius"
)

// Correlator assigns an outgoing request a correlation key and later
// resolves an inbound response back to the request it answers.
// Strategy A (IdentifierCorrelator) keys on the wire Identifier plus
// remote address, per RFC 2865. Strategy B (ProxyStateCorrelator) adds
// a Proxy-State attribute carrying a monotonic sequence number, for
// use in proxy chains where more than one hop may reuse the same
// Identifier concurrently.
type Correlator interface {
	// Assign reserves a correlation key for a new outgoing request to
	// endpoint, mutating req if the strategy needs to stamp it (for
	// example adding a Proxy-State attribute). It returns an opaque
	// key to pass to Release, and an error if the strategy has no
	// room for a new request (Strategy A: all 256 identifiers for
	// this endpoint are in flight).
	Assign(endpoint string, req *radius.Packet) (key interface{}, err error)

	// Resolve looks up the outstanding key a raw response datagram
	// answers, reading only the fields it needs directly off the
	// wire bytes (no secret or dictionary is available yet at this
	// point). ok is false for an unsolicited or already-resolved
	// response.
	Resolve(endpoint string, raw []byte) (key interface{}, ok bool)

	// Release frees a key, whether because the response arrived, the
	// request timed out, or the owning socket is shutting down.
	Release(endpoint string, key interface{})

	// Strip removes any attribute this strategy injected into the
	// outgoing request from a resolved response, before the caller
	// sees it. Strategy A injects nothing and is a no-op; Strategy B
	// removes its own Proxy-State.
	Strip(key interface{}, resp *radius.Packet)
}

// IdentifierCorrelator implements Strategy A: the wire Identifier
// (0-255) plus remote endpoint is the correlation key. When all 256
// identifiers for an endpoint are outstanding, Assign rejects the new
// send rather than evicting or queuing one (the Open Question
// decision recorded for this implementation).
type IdentifierCorrelator struct {
	mu         sync.Mutex
	inFlight   map[string]map[byte]bool
	lastIDUsed map[string]byte
}

// NewIdentifierCorrelator returns an empty Strategy A correlator.
func NewIdentifierCorrelator() *IdentifierCorrelator {
	return &IdentifierCorrelator{
		inFlight:   make(map[string]map[byte]bool),
		lastIDUsed: make(map[string]byte),
	}
}

type identifierKey struct {
	endpoint string
	id       byte
}

func (c *IdentifierCorrelator) Assign(endpoint string, req *radius.Packet) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idMap, ok := c.inFlight[endpoint]
	if !ok {
		idMap = make(map[byte]bool)
		c.inFlight[endpoint] = idMap
	}

	next := c.lastIDUsed[endpoint]
	for i := 0; i < 256; i++ {
		next++
		if !idMap[next] {
			idMap[next] = true
			c.lastIDUsed[endpoint] = next
			req.Identifier = next
			return identifierKey{endpoint: endpoint, id: next}, nil
		}
	}
	return nil, fmt.Errorf("exhausted identifiers for endpoint %s", endpoint)
}

func (c *IdentifierCorrelator) Resolve(endpoint string, raw []byte) (interface{}, bool) {
	id, err := radius.PeekIdentifier(raw)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idMap, ok := c.inFlight[endpoint]
	if !ok || !idMap[id] {
		return nil, false
	}
	return identifierKey{endpoint: endpoint, id: id}, true
}

func (c *IdentifierCorrelator) Release(endpoint string, key interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := key.(identifierKey)
	if !ok {
		return
	}
	if idMap, ok := c.inFlight[k.endpoint]; ok {
		delete(idMap, k.id)
	}
	_ = endpoint
}

func (c *IdentifierCorrelator) Strip(key interface{}, resp *radius.Packet) {}

// ProxyStateCorrelator implements Strategy B, mandatory for proxy
// chains: every outgoing request carries a Proxy-State attribute
// holding a monotonically increasing sequence number, encoded as
// decimal ASCII (matching the reference implementation's
// Integer.toString encoding, so a conforming peer reading the
// attribute as text sees a number, not binary garbage), which the
// upstream server must echo back unchanged. Because the sequence
// number is globally unique for the lifetime of the correlator, it
// alone is the correlation key; Identifier collisions across
// concurrent sends to the same endpoint do not matter to this
// strategy.
type ProxyStateCorrelator struct {
	mu       sync.Mutex
	nextSeq  uint32
	inFlight map[uint32]bool
}

// NewProxyStateCorrelator returns an empty Strategy B correlator.
func NewProxyStateCorrelator() *ProxyStateCorrelator {
	return &ProxyStateCorrelator{inFlight: make(map[uint32]bool)}
}

func (c *ProxyStateCorrelator) Assign(endpoint string, req *radius.Packet) (interface{}, error) {
	c.mu.Lock()
	c.nextSeq++
	seq := c.nextSeq
	c.inFlight[seq] = true
	c.mu.Unlock()

	value := []byte(strconv.FormatUint(uint64(seq), 10))
	if err := req.Add("Proxy-State", value); err != nil {
		return nil, err
	}
	return seq, nil
}

func (c *ProxyStateCorrelator) Resolve(endpoint string, raw []byte) (interface{}, bool) {
	// Proxy-State is type 33; our own value is always the last one
	// echoed back at the trailing position, matching RFC 2865
	// section 5.33's "append, never reorder" rule.
	last, ok := radius.PeekTopLevelAttribute(raw, 33)
	if !ok {
		return nil, false
	}
	seq, err := strconv.ParseUint(string(last), 10, 32)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inFlight[uint32(seq)] {
		return nil, false
	}
	return uint32(seq), true
}

func (c *ProxyStateCorrelator) Release(endpoint string, key interface{}) {
	seq, ok := key.(uint32)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, seq)
}

// Strip removes the Proxy-State attribute this correlator added to
// the outgoing request from resp, identified by its decimal-ASCII
// sequence number matching key, before the caller sees resp.
func (c *ProxyStateCorrelator) Strip(key interface{}, resp *radius.Packet) {
	seq, ok := key.(uint32)
	if !ok {
		return
	}
	want := strconv.FormatUint(uint64(seq), 10)
	for i := len(resp.Attributes) - 1; i >= 0; i-- {
		a := resp.Attributes[i]
		if a.Name != "Proxy-State" {
			continue
		}
		if string(a.GetOctets()) == want {
			resp.Attributes = append(resp.Attributes[:i], resp.Attributes[i+1:]...)
		}
		return
	}
}
