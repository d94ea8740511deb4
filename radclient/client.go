package radclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/radius/metrics"
	"github.com/relaycore/radius/radius"
)

// SecretProvider resolves the shared secret to use for a given
// upstream endpoint (host:port).
type SecretProvider interface {
	SecretFor(endpoint string) ([]byte, error)
}

// Config holds the client's default retry/timeout parameters, applied
// to every SendAndAwait call unless overridden per call.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
}

// DefaultConfig matches the teacher's client socket defaults: a
// generous per-attempt timeout and a small number of retries, since a
// slow upstream should fail fast rather than hold a caller's
// goroutine indefinitely.
var DefaultConfig = Config{Timeout: 2 * time.Second, MaxAttempts: 3}

// Client is the public entry point for sending RADIUS requests and
// awaiting their responses. It owns one Socket (one local UDP port)
// and the Correlator strategy used to match responses to requests.
type Client struct {
	socket  *Socket
	secrets SecretProvider
	cfg     Config
}

// NewClient binds a UDP socket at bindAddress and returns a Client
// using correlator for request/response matching. Strategy A
// (NewIdentifierCorrelator) is appropriate for a client talking
// directly to RADIUS servers; Strategy B (NewProxyStateCorrelator) is
// mandatory when this client is the upstream leg of a proxy (spec.md
// section 4.5).
func NewClient(bindAddress string, dict *radius.Dictionary, correlator Correlator, secrets SecretProvider, m *metrics.ClientMetrics, log *zap.SugaredLogger, cfg Config) (*Client, error) {
	controlChannel := make(chan interface{}, 1)
	socket, err := NewSocket(bindAddress, dict, correlator, m, log, controlChannel)
	if err != nil {
		return nil, err
	}
	go func() {
		<-controlChannel // drain the terminal SocketDownEvent so its sender never blocks
	}()
	return &Client{socket: socket, secrets: secrets, cfg: cfg}, nil
}

// Close shuts down the underlying socket, cancelling any outstanding
// requests with an error.
func (c *Client) Close() {
	c.socket.Close()
}

// SendAndAwait sends req to endpoint and blocks until a matching
// response arrives, ctx is cancelled, or retries are exhausted.
func (c *Client) SendAndAwait(ctx context.Context, endpoint string, req *radius.Packet) (*radius.Packet, error) {
	secret, err := c.secrets.SecretFor(endpoint)
	if err != nil {
		return nil, radius.NewError(radius.UnknownSecret, endpoint)
	}

	rc := make(chan interface{}, 1)
	c.socket.Send(endpoint, req, secret, c.cfg.Timeout, c.cfg.MaxAttempts, rc)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case v := <-rc:
		switch r := v.(type) {
		case *radius.Packet:
			return r, nil
		case error:
			return nil, r
		default:
			return nil, fmt.Errorf("radclient: unexpected response value %T", v)
		}
	}
}
