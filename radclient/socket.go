package radclient

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/radius/metrics"
	"github.com/relaycore/radius/radius"
)

const eventLoopCapacity = 100

// SocketDownEvent is sent on the socket's control channel when the
// event loop has terminated, whether due to a read error, EOF, or an
// explicit Close.
type SocketDownEvent struct {
	Sender *Socket
	Error  error
}

type responseMsg struct {
	remote net.UDPAddr
	raw    []byte
}

type requestMsg struct {
	endpoint string
	packet   *radius.Packet
	secret   []byte
	attempts int
	timeout  time.Duration
	rchan    chan interface{}
}

type retryMsg struct {
	endpoint string
	key      interface{}
	attempt  int
}

type closeMsg struct{}
type readEOFMsg struct{}
type readErrorMsg struct{ err error }

type requestContext struct {
	endpoint      string
	packet        *radius.Packet
	secret        []byte
	attempts      int
	maxAttempts   int
	timeout       time.Duration
	timer         *time.Timer
	rchan         chan interface{}
	authenticator [16]byte
}

// Socket owns a single UDP port and runs the actor-model send/receive
// loop: a readLoop goroutine blocks on ReadFrom and posts inbound
// datagrams to the eventLoop's channel, while the eventLoop goroutine
// is the only code that ever touches the correlator or timers.
type Socket struct {
	dict       *radius.Dictionary
	correlator Correlator
	metrics    *metrics.ClientMetrics
	log        *zap.SugaredLogger

	conn net.PacketConn

	eventLoopChannel chan interface{}
	readLoopDone     chan struct{}
	controlChannel   chan interface{}

	contexts map[interface{}]*requestContext
	ctxMu    sync.Mutex // guards contexts; eventLoop itself is single-threaded

	wg sync.WaitGroup
}

// NewSocket binds a UDP socket at bindAddress and starts its event
// and read loops. controlChannel receives a SocketDownEvent when the
// socket terminates.
func NewSocket(bindAddress string, dict *radius.Dictionary, correlator Correlator, m *metrics.ClientMetrics, log *zap.SugaredLogger, controlChannel chan interface{}) (*Socket, error) {
	conn, err := net.ListenPacket("udp", bindAddress)
	if err != nil {
		return nil, fmt.Errorf("binding client socket to %s: %w", bindAddress, err)
	}

	s := &Socket{
		dict:             dict,
		correlator:       correlator,
		metrics:          m,
		log:              log,
		conn:             conn,
		eventLoopChannel: make(chan interface{}, eventLoopCapacity),
		readLoopDone:     make(chan struct{}),
		controlChannel:   controlChannel,
		contexts:         make(map[interface{}]*requestContext),
	}

	go s.eventLoop()
	go s.readLoop()

	return s, nil
}

// Close signals the event loop to cancel every outstanding request
// and shut down, then blocks until both loops have exited.
func (s *Socket) Close() {
	s.eventLoopChannel <- closeMsg{}
	<-s.readLoopDone
	s.wg.Wait()
}

// Send enqueues a request for transmission. rc must be a buffered
// channel of capacity at least 1; it receives exactly one value (a
// *radius.Packet on success, or an error) and is then closed.
func (s *Socket) Send(endpoint string, packet *radius.Packet, secret []byte, timeout time.Duration, maxAttempts int, rc chan interface{}) {
	if cap(rc) < 1 {
		panic("radclient: response channel must be buffered")
	}
	s.wg.Add(1)
	s.eventLoopChannel <- requestMsg{endpoint: endpoint, packet: packet, secret: secret, attempts: maxAttempts, timeout: timeout, rchan: rc}
}

func (s *Socket) readLoop() {
	buf := make([]byte, radius.MaxPacketSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if err == io.EOF {
				s.eventLoopChannel <- readEOFMsg{}
			} else {
				s.eventLoopChannel <- readErrorMsg{err}
			}
			break
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		s.eventLoopChannel <- responseMsg{remote: *addr.(*net.UDPAddr), raw: raw}
	}
	close(s.readLoopDone)
}

func (s *Socket) eventLoop() {
	defer s.conn.Close()

	for in := range s.eventLoopChannel {
		switch v := in.(type) {

		case readEOFMsg:
			s.cancelAll(io.EOF)
			s.controlChannel <- SocketDownEvent{Sender: s}
			return

		case readErrorMsg:
			s.cancelAll(v.err)
			s.controlChannel <- SocketDownEvent{Sender: s, Error: v.err}
			return

		case closeMsg:
			s.cancelAll(fmt.Errorf("socket closing"))
			s.controlChannel <- SocketDownEvent{Sender: s}
			return

		case requestMsg:
			s.handleRequest(v)

		case retryMsg:
			s.handleRetry(v)

		case responseMsg:
			s.handleResponse(v)
		}
	}
}

func (s *Socket) handleRequest(v requestMsg) {
	key, err := s.correlator.Assign(v.endpoint, v.packet)
	if err != nil {
		s.finish(v.rchan, err)
		s.wg.Done()
		return
	}

	if err := s.transmit(v.endpoint, v.packet, v.secret); err != nil {
		s.correlator.Release(v.endpoint, key)
		s.finish(v.rchan, err)
		s.wg.Done()
		return
	}

	ctx := &requestContext{
		endpoint: v.endpoint, packet: v.packet, secret: v.secret,
		attempts: 1, maxAttempts: v.attempts, timeout: v.timeout,
		rchan: v.rchan, authenticator: v.packet.Authenticator,
	}
	ctx.timer = time.AfterFunc(v.timeout, func() {
		s.eventLoopChannel <- retryMsg{endpoint: v.endpoint, key: key, attempt: ctx.attempts}
	})
	s.setContext(key, ctx)

	if s.metrics != nil {
		s.metrics.RequestsSent.WithLabelValues(v.endpoint, v.packet.Code.String()).Inc()
	}
}

func (s *Socket) handleRetry(v retryMsg) {
	ctx, ok := s.getContext(v.key)
	if !ok {
		return
	}
	if ctx.attempts >= ctx.maxAttempts {
		s.correlator.Release(v.endpoint, v.key)
		s.deleteContext(v.key)
		s.finish(ctx.rchan, radius.NewError(radius.Timeout, "request timed out after retries"))
		s.wg.Done()
		if s.metrics != nil {
			s.metrics.Timeouts.WithLabelValues(v.endpoint, ctx.packet.Code.String()).Inc()
		}
		return
	}

	ctx.attempts++
	if err := s.transmit(v.endpoint, ctx.packet, ctx.secret); err != nil {
		s.correlator.Release(v.endpoint, v.key)
		s.deleteContext(v.key)
		s.finish(ctx.rchan, err)
		s.wg.Done()
		return
	}
	ctx.timer = time.AfterFunc(ctx.timeout, func() {
		s.eventLoopChannel <- retryMsg{endpoint: v.endpoint, key: v.key, attempt: ctx.attempts}
	})
}

func (s *Socket) handleResponse(v responseMsg) {
	key, ok := s.correlator.Resolve(v.remote.String(), v.raw)
	if !ok {
		s.log.Debugw("unsolicited response", "remote", v.remote.String())
		if s.metrics != nil {
			s.metrics.Stalled.WithLabelValues(v.remote.String()).Inc()
		}
		return
	}

	ctx, ok := s.getContext(key)
	if !ok {
		return
	}

	resp, err := radius.FromBytes(v.raw, s.dict, ctx.secret, ctx.authenticator)
	if err != nil {
		s.log.Warnw("response failed authenticator/decode check", "remote", v.remote.String(), "error", err)
		return
	}
	if !resp.ValidateResponseAuthenticator(v.raw, ctx.authenticator, ctx.secret) {
		s.log.Warnw("bad response authenticator", "remote", v.remote.String())
		return
	}

	ctx.timer.Stop()
	s.wg.Done()
	s.correlator.Strip(key, resp)
	s.correlator.Release(ctx.endpoint, key)
	s.deleteContext(key)
	s.finish(ctx.rchan, resp)

	if s.metrics != nil {
		s.metrics.ResponsesReceived.WithLabelValues(ctx.endpoint, resp.Code.String()).Inc()
	}
}

func (s *Socket) transmit(endpoint string, p *radius.Packet, secret []byte) error {
	raw, err := p.ToBytes(secret, [16]byte{})
	if err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(raw, addr)
	return err
}

func (s *Socket) cancelAll(reason error) {
	s.ctxMu.Lock()
	ctxs := s.contexts
	s.contexts = make(map[interface{}]*requestContext)
	s.ctxMu.Unlock()

	for key, ctx := range ctxs {
		ctx.timer.Stop()
		s.correlator.Release(ctx.endpoint, key)
		s.finish(ctx.rchan, reason)
		s.wg.Done()
	}
}

func (s *Socket) finish(rc chan interface{}, v interface{}) {
	rc <- v
	close(rc)
}

func (s *Socket) setContext(key interface{}, ctx *requestContext) {
	s.ctxMu.Lock()
	s.contexts[key] = ctx
	s.ctxMu.Unlock()
}

func (s *Socket) getContext(key interface{}) (*requestContext, bool) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	ctx, ok := s.contexts[key]
	return ctx, ok
}

func (s *Socket) deleteContext(key interface{}) {
	s.ctxMu.Lock()
	delete(s.contexts, key)
	s.ctxMu.Unlock()
}
