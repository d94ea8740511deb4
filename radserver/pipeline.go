package radserver

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/radius/metrics"
	"github.com/relaycore/radius/radius"
)

// DefaultDedupTTL is how long a completed response is kept available
// for answering a retransmit, matching the Open Question decision
// recorded for this implementation (spec.md section 9).
const DefaultDedupTTL = 30 * time.Second

const dedupSweepInterval = 5 * time.Second

// Server owns a UDP listen socket and runs the decode -> verify ->
// dedup -> handler -> encode -> reply pipeline for every inbound
// packet, grounded on the teacher's single-goroutine readLoop plus a
// per-packet handler goroutine.
type Server struct {
	dict     *radius.Dictionary
	secrets  SecretProvider
	handler  Handler
	metrics  *metrics.ServerMetrics
	log      *zap.SugaredLogger
	dedup    *dedupCache
	conn     net.PacketConn
	closed   chan struct{}
}

// NewServer binds bindAddress and starts serving immediately.
func NewServer(bindAddress string, dict *radius.Dictionary, secrets SecretProvider, handler Handler, m *metrics.ServerMetrics, log *zap.SugaredLogger, dedupTTL time.Duration) (*Server, error) {
	conn, err := net.ListenPacket("udp", bindAddress)
	if err != nil {
		return nil, fmt.Errorf("binding radius server to %s: %w", bindAddress, err)
	}

	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}

	var onSize func(int)
	if m != nil {
		onSize = func(n int) { m.DedupCacheSize.Set(float64(n)) }
	}

	s := &Server{
		dict:    dict,
		secrets: secrets,
		handler: handler,
		metrics: m,
		log:     log,
		dedup:   newDedupCache(dedupTTL, dedupSweepInterval, onSize),
		conn:    conn,
		closed:  make(chan struct{}),
	}

	go s.readLoop()
	return s, nil
}

// Addr returns the socket's bound local address.
func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Close stops accepting new packets; in-flight handler goroutines run
// to completion but their responses, if the socket is already closed,
// will fail to write and be logged.
func (s *Server) Close() {
	close(s.closed)
	s.conn.Close()
	s.dedup.Stop()
}

func (s *Server) readLoop() {
	buf := make([]byte, radius.MaxPacketSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.log.Errorf("radius server read error: %s", err)
				return
			}
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		udpAddr := addr.(*net.UDPAddr)
		go s.handleDatagram(raw, udpAddr)
	}
}

func (s *Server) handleDatagram(raw []byte, addr *net.UDPAddr) {
	clientIP := addr.IP.String()

	secret, err := s.secrets.SecretFor(clientIP)
	if err != nil {
		s.drop(clientIP, "unknown client")
		s.log.Warnf("dropping packet from unknown client %s", clientIP)
		return
	}

	req, err := radius.FromBytes(raw, s.dict, secret, [16]byte{})
	if err != nil {
		s.drop(clientIP, "malformed packet")
		s.log.Warnf("error decoding packet from %s: %s", clientIP, err)
		return
	}
	codeStr := strconv.Itoa(int(req.Code))

	if !isAccessRequestCode(req.Code) && !req.ValidateRequestAuthenticator(raw, secret) {
		s.drop(clientIP, "bad request authenticator")
		s.log.Warnf("dropping %s from %s: bad request authenticator", req.Code, clientIP)
		return
	}

	if s.metrics != nil {
		s.metrics.RequestsReceived.WithLabelValues(clientIP, codeStr).Inc()
	}

	key := dedupKey{remote: addr.String(), identifier: req.Identifier, authenticator: req.Authenticator}
	if cached, inFlight, known := s.dedup.lookup(key); known {
		if s.metrics != nil {
			s.metrics.DedupHits.WithLabelValues(clientIP).Inc()
		}
		if !inFlight {
			s.conn.WriteTo(cached, addr)
		}
		// inFlight: the original is still being handled; drop this
		// retransmit silently, the eventual response will cover it.
		return
	}
	if s.metrics != nil {
		s.metrics.DedupMisses.WithLabelValues(clientIP).Inc()
	}
	s.dedup.markInFlight(key)

	resp, err := s.handler.HandleRadiusPacket(req)
	if err != nil {
		s.log.Errorf("handler error for %s from %s: %s", req.Code, clientIP, err)
		s.drop(clientIP, "handler error")
		return
	}

	respBytes, err := resp.ToBytes(secret, req.Authenticator)
	if err != nil {
		s.log.Errorf("error encoding response for %s from %s: %s", req.Code, clientIP, err)
		s.drop(clientIP, "encode error")
		return
	}

	s.dedup.complete(key, respBytes)

	if _, err := s.conn.WriteTo(respBytes, addr); err != nil {
		s.log.Errorf("error writing response to %s: %s", clientIP, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ResponsesSent.WithLabelValues(clientIP, resp.Code.String()).Inc()
	}
}

func (s *Server) drop(clientIP, reason string) {
	if s.metrics != nil {
		s.metrics.Drops.WithLabelValues(clientIP, reason).Inc()
	}
}

func isAccessRequestCode(c radius.Code) bool {
	return c == radius.CodeAccessRequest || c == radius.CodeStatusServer || c == radius.CodeStatusClient
}
