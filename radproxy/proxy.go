// Package radproxy relays RADIUS requests to an upstream server and
// relays the response back, generalizing the teacher's routing-table
// forwarder into a policy-driven Handler usable from radserver.
package radproxy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/radius/metrics"
	"github.com/relaycore/radius/radclient"
	"github.com/relaycore/radius/radius"
)

// GetProxyServer decides which upstream endpoint (host:port) should
// receive req. Returning an error drops the request without a reply,
// matching RFC 2865's silent-drop guidance for requests that cannot be
// routed.
type GetProxyServer func(req *radius.Packet) (upstream string, err error)

// Handler forwards inbound requests to an upstream RADIUS server over
// a radclient.Client using Strategy B correlation (mandatory for proxy
// chains, since the upstream's Identifier space is shared across every
// client this proxy serves) and relays the response back unchanged
// except for its own Proxy-State.
type Handler struct {
	client      *radclient.Client
	getUpstream GetProxyServer
	metrics     *metrics.ProxyMetrics
	log         *zap.SugaredLogger
	cfg         radclient.Config
}

// NewHandler builds a proxy Handler. client must have been constructed
// with a *ProxyStateCorrelator (radclient.NewProxyStateCorrelator).
func NewHandler(client *radclient.Client, getUpstream GetProxyServer, m *metrics.ProxyMetrics, log *zap.SugaredLogger, cfg radclient.Config) *Handler {
	return &Handler{client: client, getUpstream: getUpstream, metrics: m, log: log, cfg: cfg}
}

// HandleRadiusPacket implements radserver.Handler.
func (h *Handler) HandleRadiusPacket(req *radius.Packet) (*radius.Packet, error) {
	upstream, err := h.getUpstream(req)
	if err != nil {
		return nil, fmt.Errorf("radproxy: no route for request: %w", err)
	}

	forward, err := radius.NewRequest(req.Code, req.Dictionary())
	if err != nil {
		return nil, err
	}
	forward.Attributes = append(forward.Attributes, req.Attributes...)

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout*time.Duration(h.cfg.MaxAttempts+1))
	defer cancel()

	resp, err := h.client.SendAndAwait(ctx, upstream, forward)
	if err != nil {
		if h.metrics != nil {
			h.metrics.Failed.WithLabelValues(upstream, classifyFailure(err)).Inc()
		}
		return nil, fmt.Errorf("radproxy: forwarding to %s: %w", upstream, err)
	}
	if h.metrics != nil {
		h.metrics.Forwarded.WithLabelValues(upstream, req.Code.String()).Inc()
	}

	reply, err := req.MakeResponseTo(resp.Code)
	if err != nil {
		return nil, err
	}
	// The correlator already strips its own Proxy-State from resp; this
	// second, unconditional strip-then-reconstruct is a safety net that
	// discards any remaining Proxy-State the upstream hop echoed back
	// and rebuilds the set purely from req via EchoProxyState below, so
	// the downstream leg never sees anything but its own attribute.
	stripped := resp.Filtered(nil, []string{"Proxy-State"})
	reply.Attributes = append(reply.Attributes, stripped.Attributes...)
	radius.EchoProxyState(req, reply)

	return reply, nil
}

func classifyFailure(err error) string {
	if radius.IsKind(err, radius.Timeout) {
		return "timeout"
	}
	if radius.IsKind(err, radius.UnknownSecret) {
		return "unknown_secret"
	}
	return "error"
}
