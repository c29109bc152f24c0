package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/die-net/socksx/internal/conn"
)

// relayPair returns a registered channel over a pipe and the far end of
// that pipe.
func relayPair(t *testing.T, loop *conn.EventLoop, handler func() conn.Handler) (*conn.Channel, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() { _ = remote.Close() })
	_ = remote.SetDeadline(time.Now().Add(2 * time.Second))

	ch := conn.NewChannel(loop, local, conn.ChannelConfig{})
	err := ch.Register(func(p *conn.Pipeline) error {
		if h := handler(); h != nil {
			return p.AddLast(relayName, h)
		}
		return nil
	}).Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch, remote
}

func TestRelayForwardsAndPropagatesClose(t *testing.T) {
	loops := conn.NewEventLoopGroup(1)
	defer loops.Close()
	loop := loops.Next()

	var a, b *conn.Channel
	a, aRemote := relayPair(t, loop, func() conn.Handler { return &lazyRelay{peer: &b} })
	b, bRemote := relayPair(t, loop, func() conn.Handler { return NewRelay(a) })

	if _, err := aRemote.Write([]byte("to b")); err != nil {
		t.Fatal(err)
	}
	expectRead(t, bRemote, []byte("to b"))

	if _, err := bRemote.Write([]byte("to a")); err != nil {
		t.Fatal(err)
	}
	expectRead(t, aRemote, []byte("to a"))

	_ = bRemote.Close()
	expectClosed(t, aRemote)
}

func TestRelayDiscardsAfterPeerClosed(t *testing.T) {
	loops := conn.NewEventLoopGroup(1)
	defer loops.Close()
	loop := loops.Next()

	b, _ := relayPair(t, loop, func() conn.Handler { return nil })
	a, aRemote := relayPair(t, loop, func() conn.Handler { return NewRelay(b) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Close().Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := aRemote.Write([]byte("late")); err != nil {
		t.Fatal(err)
	}

	// The second write is read only after the first chunk was delivered.
	if _, err := aRemote.Write([]byte("later")); err != nil {
		t.Fatal(err)
	}

	if !a.IsActive() {
		t.Fatal("relay closed its own side")
	}
}

// lazyRelay resolves its peer on first use, for pairs built one at a time.
type lazyRelay struct {
	conn.HandlerAdapter
	peer  **conn.Channel
	relay *Relay
}

func (l *lazyRelay) get() *Relay {
	if l.relay == nil {
		l.relay = NewRelay(*l.peer)
	}
	return l.relay
}

func (l *lazyRelay) ChannelRead(ctx *conn.Context, msg any)   { l.get().ChannelRead(ctx, msg) }
func (l *lazyRelay) ChannelInactive(ctx *conn.Context)        { l.get().ChannelInactive(ctx) }
func (l *lazyRelay) ErrorCaught(ctx *conn.Context, err error) { l.get().ErrorCaught(ctx, err) }
