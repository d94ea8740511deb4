package radclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaycore/radius/metrics"
	"github.com/relaycore/radius/radlog"
	"github.com/relaycore/radius/radius"
	"github.com/relaycore/radius/radius/dictdata"
	"github.com/relaycore/radius/store"
)

// runEchoServer answers every Access-Request with an Access-Accept,
// echoing back whatever the correlation strategy stamped on the
// request (Identifier or Proxy-State), so the client can resolve it.
func runEchoServer(t *testing.T, addr string, dict *radius.Dictionary, secret string, stop <-chan struct{}) {
	t.Helper()
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		<-stop
		conn.Close()
	}()
	go func() {
		buf := make([]byte, radius.MaxPacketSize)
		for {
			n, raddr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req, err := radius.FromBytes(buf[:n], dict, []byte(secret), [16]byte{})
			if err != nil {
				continue
			}
			resp, err := radius.NewAccessAccept(req)
			if err != nil {
				continue
			}
			for _, a := range req.GetAll("Proxy-State") {
				resp.Attributes = append(resp.Attributes, a)
			}
			raw, err := resp.ToBytes([]byte(secret), req.Authenticator)
			if err != nil {
				continue
			}
			conn.WriteTo(raw, raddr)
		}
	}()
}

func TestClientSendAndAwaitIdentifierCorrelator(t *testing.T) {
	dict := radius.NewDictionary()
	secret := "sharedsecret"

	srvAddr := "127.0.0.1:0"
	srvConn, err := net.ListenPacket("udp", srvAddr)
	if err != nil {
		t.Fatal(err)
	}
	addr := srvConn.LocalAddr().String()
	srvConn.Close()

	stop := make(chan struct{})
	defer close(stop)
	runEchoServer(t, addr, dict, secret, stop)
	time.Sleep(20 * time.Millisecond)

	secrets := store.NewMapSecretProvider(map[string]string{addr: secret})
	m := metrics.NewClientMetrics(prometheus.NewRegistry())
	client, err := NewClient("127.0.0.1:0", dict, NewIdentifierCorrelator(), secrets, m, radlog.GetLogger(), Config{Timeout: 300 * time.Millisecond, MaxAttempts: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	req, _ := radius.NewRequest(radius.CodeAccessRequest, dict)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.SendAndAwait(ctx, addr, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Code != radius.CodeAccessAccept {
		t.Errorf("resp.Code = %v, want Access-Accept", resp.Code)
	}
}

// TestClientSendAndAwaitProxyStateCorrelatorStripsOwnAttribute exercises
// Strategy B end to end through Client.SendAndAwait: the response
// handed back to the caller must carry neither the correlator's own
// Proxy-State nor any trace of it, even though the echoing server
// dutifully echoes it back on the wire.
func TestClientSendAndAwaitProxyStateCorrelatorStripsOwnAttribute(t *testing.T) {
	dict, err := radius.LoadDictionaryFS(dictdata.FS, dictdata.DefaultPath)
	if err != nil {
		t.Fatal(err)
	}
	secret := "sharedsecret"

	srvAddr := "127.0.0.1:0"
	srvConn, err := net.ListenPacket("udp", srvAddr)
	if err != nil {
		t.Fatal(err)
	}
	addr := srvConn.LocalAddr().String()
	srvConn.Close()

	stop := make(chan struct{})
	defer close(stop)
	runEchoServer(t, addr, dict, secret, stop)
	time.Sleep(20 * time.Millisecond)

	secrets := store.NewMapSecretProvider(map[string]string{addr: secret})
	m := metrics.NewClientMetrics(prometheus.NewRegistry())
	client, err := NewClient("127.0.0.1:0", dict, NewProxyStateCorrelator(), secrets, m, radlog.GetLogger(), Config{Timeout: 300 * time.Millisecond, MaxAttempts: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	req, _ := radius.NewRequest(radius.CodeAccessRequest, dict)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.SendAndAwait(ctx, addr, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Code != radius.CodeAccessAccept {
		t.Errorf("resp.Code = %v, want Access-Accept", resp.Code)
	}
	if states := resp.GetAll("Proxy-State"); len(states) != 0 {
		t.Errorf("expected the correlator's own Proxy-State to be stripped, found %d", len(states))
	}
}

func TestClientTimeoutWhenUnanswered(t *testing.T) {
	dict := radius.NewDictionary()
	secrets := store.NewMapSecretProvider(map[string]string{"127.0.0.1:1": "s"})
	m := metrics.NewClientMetrics(prometheus.NewRegistry())
	client, err := NewClient("127.0.0.1:0", dict, NewIdentifierCorrelator(), secrets, m, radlog.GetLogger(), Config{Timeout: 30 * time.Millisecond, MaxAttempts: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	req, _ := radius.NewRequest(radius.CodeAccessRequest, dict)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.SendAndAwait(ctx, "127.0.0.1:1", req)
	if !radius.IsKind(err, radius.Timeout) {
		t.Errorf("expected Timeout error, got %v", err)
	}
}

func TestClientUnknownSecret(t *testing.T) {
	dict := radius.NewDictionary()
	secrets := store.NewMapSecretProvider(nil)
	m := metrics.NewClientMetrics(prometheus.NewRegistry())
	client, err := NewClient("127.0.0.1:0", dict, NewIdentifierCorrelator(), secrets, m, radlog.GetLogger(), DefaultConfig)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	req, _ := radius.NewRequest(radius.CodeAccessRequest, dict)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.SendAndAwait(ctx, "127.0.0.1:9999", req)
	if !radius.IsKind(err, radius.UnknownSecret) {
		t.Errorf("expected UnknownSecret error, got %v", err)
	}
}
