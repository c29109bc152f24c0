package proxy

import (
	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
)

// Relay forwards what its channel reads to peer. A connection pair has one
// Relay on each side; closing either side closes the other.
//
// Each chunk is read only after the previous one has been written to the
// peer, so a slow reader on one side throttles the other.
type Relay struct {
	conn.HandlerAdapter
	peer *conn.Channel
}

func NewRelay(peer *conn.Channel) *Relay {
	return &Relay{peer: peer}
}

// ChannelActive flushes writes the peer's relay made before this side was
// connected.
func (r *Relay) ChannelActive(ctx *conn.Context) {
	ctx.Flush()
}

func (r *Relay) ChannelRead(ctx *conn.Context, msg any) {
	if !r.peer.IsActive() {
		conn.Release(msg)
		return
	}

	ch := ctx.Channel()
	ch.SetAutoRead(false)
	r.peer.WriteAndFlush(msg).OnComplete(func(p *conn.Promise) {
		if p.Err() == nil {
			ch.SetAutoRead(true)
		}
	})
}

func (r *Relay) ChannelInactive(*conn.Context) {
	if r.peer.IsActive() {
		r.peer.Flush()
		r.peer.Close()
	}
}

func (r *Relay) ErrorCaught(ctx *conn.Context, err error) {
	if ce := ctx.Channel().Logger().Check(zap.DebugLevel, "relay error"); ce != nil {
		ce.Write(zap.Error(err))
	}
	ctx.Close()
}
