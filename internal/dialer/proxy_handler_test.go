package dialer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/die-net/socksx/internal/conn"
)

type recorder struct {
	conn.HandlerAdapter
	events chan any
}

func (r *recorder) UserEvent(_ *conn.Context, evt any) {
	select {
	case r.events <- evt:
	default:
	}
}

func (*recorder) ErrorCaught(*conn.Context, error) {}

// newProxiedChannel registers h in front of a recorder on a channel whose
// connect yields one end of a pipe. The other end plays the proxy.
func newProxiedChannel(t *testing.T, h *ProxyHandler) (*conn.Channel, net.Conn, *recorder) {
	t.Helper()

	loops := conn.NewEventLoopGroup(1)
	t.Cleanup(loops.Close)

	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	ch := conn.NewChannel(loops.Next(), nil, conn.ChannelConfig{
		Dial: func(_ context.Context, _, address string) (net.Conn, error) {
			if address != h.ProxyAddress() {
				return nil, fmt.Errorf("dialed %s, want %s", address, h.ProxyAddress())
			}
			return client, nil
		},
	})
	ch.SetAutoRead(false)

	rec := &recorder{events: make(chan any, 4)}
	err := ch.Register(func(p *conn.Pipeline) error {
		if err := p.AddLast("proxy", h); err != nil {
			return err
		}
		return p.AddLast("app", rec)
	}).Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })

	return ch, server, rec
}

func onLoop[T any](ch *conn.Channel, fn func() T) T {
	res := make(chan T, 1)
	ch.Loop().Execute(func() { res <- fn() })
	return <-res
}

func expectBytes(t *testing.T, r io.Reader, want []byte) {
	t.Helper()

	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("read %x: %v", want, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func writeBytes(t *testing.T, w io.Writer, b []byte) {
	t.Helper()

	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
}

func waitPromise(t *testing.T, p *conn.Promise) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("promise did not complete")
	}
	return err
}

func TestSocks5HandlerPasswordHandshake(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "user", "pass")
	ch, server, rec := newProxiedChannel(t, h)

	// Buffered until the tunnel is up.
	writes := []*conn.Promise{
		ch.Write([]byte("one")),
		ch.Write([]byte("two")),
		ch.Write([]byte("three")),
	}
	ch.Flush()
	connectPromise := ch.Connect("example.com:443")

	expectBytes(t, server, []byte{0x05, 0x02, 0x00, 0x02})
	writeBytes(t, server, []byte{0x05, 0x02})

	expectBytes(t, server, []byte{0x01, 0x04, 'u', 's', 'e', 'r', 0x04, 'p', 'a', 's', 's'})
	writeBytes(t, server, []byte{0x01, 0x00})

	connect := append([]byte{0x05, 0x01, 0x00, 0x03, 0x0b}, "example.com"...)
	connect = append(connect, 0x01, 0xbb)
	expectBytes(t, server, connect)

	if got := onLoop(ch, h.State); got != StateAwaitingResponse {
		t.Fatalf("state %s before the command response", got)
	}

	writeBytes(t, server, []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	expectBytes(t, server, []byte("onetwothree"))

	if err := waitPromise(t, h.ConnectFuture()); err != nil {
		t.Fatal(err)
	}
	if err := waitPromise(t, connectPromise); err != nil {
		t.Fatal(err)
	}
	for i, p := range writes {
		if err := waitPromise(t, p); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if got := onLoop(ch, h.State); got != StateEstablished {
		t.Fatalf("state %s", got)
	}
	if got := onLoop(ch, ch.Pipeline().Names); !slices.Equal(got, []string{"proxy", "app"}) {
		t.Fatalf("pipeline %v", got)
	}

	want := ConnectionEvent{Protocol: "socks5", AuthScheme: "password", Proxy: "proxy.test:1080", Destination: "example.com:443"}
	select {
	case evt := <-rec.events:
		if evt != want {
			t.Fatalf("event %v want %v", evt, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no connection event")
	}

	// Established: writes pass straight through.
	w := ch.WriteAndFlush([]byte("four"))
	expectBytes(t, server, []byte("four"))
	if err := waitPromise(t, w); err != nil {
		t.Fatal(err)
	}
}

func TestSocks5HandlerCommandRejected(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	ch, server, _ := newProxiedChannel(t, h)

	writes := []*conn.Promise{
		ch.Write([]byte("one")),
		ch.Write([]byte("two")),
	}
	ch.Connect("10.0.0.5:443")

	expectBytes(t, server, []byte{0x05, 0x01, 0x00})
	writeBytes(t, server, []byte{0x05, 0x00})
	expectBytes(t, server, []byte{0x05, 0x01, 0x00, 0x01, 10, 0, 0, 5, 0x01, 0xbb})
	writeBytes(t, server, []byte{0x05, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	err := waitPromise(t, h.ConnectFuture())
	var pce *ProxyConnectError
	if !errors.As(err, &pce) {
		t.Fatalf("got %v, want *ProxyConnectError", err)
	}
	if !errors.Is(err, ErrConnectRejected) {
		t.Fatalf("got %v, want ErrConnectRejected", err)
	}
	if prefix := "socks5, none, proxy.test:1080 => 10.0.0.5:443, status: "; !strings.HasPrefix(err.Error(), prefix) {
		t.Fatalf("got %q, want prefix %q", err, prefix)
	}

	for i, p := range writes {
		if werr := waitPromise(t, p); !errors.As(werr, &pce) {
			t.Fatalf("write %d: got %v", i, werr)
		}
	}

	if err := waitPromise(t, ch.CloseFuture()); err != nil {
		t.Fatal(err)
	}
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Fatal("proxy side still open")
	}
	if got := onLoop(ch, h.State); got != StateFailed {
		t.Fatalf("state %s", got)
	}
}

func TestSocks5HandlerAuthRejected(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "user", "wrong")
	ch, server, _ := newProxiedChannel(t, h)
	ch.Connect("example.com:80")

	expectBytes(t, server, []byte{0x05, 0x02, 0x00, 0x02})
	writeBytes(t, server, []byte{0x05, 0x02})
	expectBytes(t, server, []byte{0x01, 0x04, 'u', 's', 'e', 'r', 0x05, 'w', 'r', 'o', 'n', 'g'})
	writeBytes(t, server, []byte{0x01, 0x01})

	err := waitPromise(t, h.ConnectFuture())
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("got %v, want ErrAuthRejected", err)
	}
}

func TestSocks5HandlerUnexpectedMethod(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	ch, server, _ := newProxiedChannel(t, h)
	ch.Connect("example.com:80")

	expectBytes(t, server, []byte{0x05, 0x01, 0x00})
	writeBytes(t, server, []byte{0x05, 0x02})

	err := waitPromise(t, h.ConnectFuture())
	if err == nil || !strings.Contains(err.Error(), "unexpected authMethod") {
		t.Fatalf("got %v", err)
	}
}

func TestSocks5HandlerMalformedResponse(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	ch, server, _ := newProxiedChannel(t, h)
	ch.Connect("example.com:80")

	expectBytes(t, server, []byte{0x05, 0x01, 0x00})
	writeBytes(t, server, []byte{0x04, 0x00})

	err := waitPromise(t, h.ConnectFuture())
	var pce *ProxyConnectError
	if !errors.As(err, &pce) {
		t.Fatalf("got %v, want *ProxyConnectError", err)
	}
}

func TestSocks4HandlerHandshake(t *testing.T) {
	h := NewSocks4Handler("proxy.test:1080", "bob")
	ch, server, rec := newProxiedChannel(t, h)

	w := ch.WriteAndFlush([]byte("hello"))
	ch.Connect("10.0.0.5:443")

	expectBytes(t, server, []byte{0x04, 0x01, 0x01, 0xbb, 10, 0, 0, 5, 'b', 'o', 'b', 0x00})
	writeBytes(t, server, []byte{0x00, 0x5a, 0x01, 0xbb, 10, 0, 0, 5})
	expectBytes(t, server, []byte("hello"))

	if err := waitPromise(t, h.ConnectFuture()); err != nil {
		t.Fatal(err)
	}
	if err := waitPromise(t, w); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-rec.events:
		if evt.(ConnectionEvent).Protocol != "socks4" || evt.(ConnectionEvent).AuthScheme != "username" {
			t.Fatalf("event %v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no connection event")
	}
}

func TestSocks4HandlerRejected(t *testing.T) {
	h := NewSocks4Handler("proxy.test:1080", "")
	ch, server, _ := newProxiedChannel(t, h)
	ch.Connect("example.com:80")

	req := append([]byte{0x04, 0x01, 0x00, 0x50, 0, 0, 0, 1, 0x00}, "example.com"...)
	expectBytes(t, server, append(req, 0x00))
	writeBytes(t, server, []byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})

	err := waitPromise(t, h.ConnectFuture())
	if !errors.Is(err, ErrConnectRejected) {
		t.Fatalf("got %v, want ErrConnectRejected", err)
	}
	if prefix := "socks4, none, proxy.test:1080 => example.com:80, status: "; !strings.HasPrefix(err.Error(), prefix) {
		t.Fatalf("got %q, want prefix %q", err, prefix)
	}
}

func TestProxyHandlerTimeout(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	h.SetConnectTimeout(50 * time.Millisecond)
	ch, server, _ := newProxiedChannel(t, h)

	w := ch.WriteAndFlush([]byte("early"))
	ch.Connect("example.com:80")
	expectBytes(t, server, []byte{0x05, 0x01, 0x00})

	err := waitPromise(t, h.ConnectFuture())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if werr := waitPromise(t, w); !errors.Is(werr, ErrTimeout) {
		t.Fatalf("write got %v", werr)
	}
}

func TestProxyHandlerTimeoutClosesStalledProxy(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	h.SetConnectTimeout(50 * time.Millisecond)
	ch, _, _ := newProxiedChannel(t, h)

	// The proxy end never reads, so the greeting stays stuck in the write.
	ch.Connect("example.com:80")

	if err := waitPromise(t, h.ConnectFuture()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if err := waitPromise(t, ch.CloseFuture()); err != nil {
		t.Fatal(err)
	}
	if ch.IsActive() {
		t.Fatal("channel still active after the handshake timed out")
	}
}

func TestProxyHandlerDisconnected(t *testing.T) {
	h := NewSocks5Handler("proxy.test:1080", "", "")
	ch, server, _ := newProxiedChannel(t, h)
	ch.Connect("example.com:80")

	expectBytes(t, server, []byte{0x05, 0x01, 0x00})
	_ = server.Close()

	err := waitPromise(t, h.ConnectFuture())
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("got %v, want ErrDisconnected", err)
	}
}

func TestProxyHandlerSecondConnectPanics(t *testing.T) {
	loops := conn.NewEventLoopGroup(1)
	defer loops.Close()

	ch := conn.NewChannel(loops.Next(), nil, conn.ChannelConfig{
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	defer ch.Close()

	h := NewSocks5Handler("proxy.test:1080", "", "")
	p := ch.Pipeline()
	if err := p.AddLast("proxy", h); err != nil {
		t.Fatal(err)
	}
	p.Connect("example.com:80", conn.NewPromise())

	defer func() {
		if recover() == nil {
			t.Fatal("second connect did not panic")
		}
	}()
	p.Connect("example.com:81", conn.NewPromise())
}

func TestProxyConnectErrorFormat(t *testing.T) {
	err := &ProxyConnectError{
		Protocol:    "socks5",
		AuthScheme:  "password",
		Proxy:       "proxy:1080",
		Destination: "example.com:443",
		Err:         ErrTimeout,
	}
	if got, want := err.Error(), "socks5, password, proxy:1080 => example.com:443, timeout"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("does not unwrap")
	}

	evt := ConnectionEvent{Protocol: "socks4", AuthScheme: "none", Proxy: "p:1", Destination: "d:2"}
	if got, want := evt.String(), "ProxyConnectionEvent(socks4, none, p:1 => d:2)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:             "Idle",
		StateAwaitingResponse: "AwaitingResponse",
		StateEstablished:      "Established",
		StateFailed:           "Failed",
		State(9):              "Invalid",
	} {
		if got := s.String(); got != want {
			t.Fatalf("%d: got %q want %q", s, got, want)
		}
	}
}
