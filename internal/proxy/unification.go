package proxy

import (
	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/socks"
	"github.com/die-net/socksx/internal/socks4"
	"github.com/die-net/socksx/internal/socks5"
)

// Pipeline names of the server-side codec stages.
const (
	encoderName = "socks.encoder"
	decoderName = "socks.decoder"
)

// Unification picks the codec for an inbound connection from its first
// byte. It installs the SOCKS4 or SOCKS5 server codec behind itself, leaves
// the pipeline and hands the bytes it saw to the new decoder. Connections
// opening with any other byte are closed.
type Unification struct {
	conn.HandlerAdapter
}

func NewUnification() *Unification { return &Unification{} }

func (u *Unification) ChannelRead(ctx *conn.Context, msg any) {
	b, ok := conn.BytesOf(msg)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	if len(b) == 0 {
		conn.Release(msg)
		return
	}

	logger := ctx.Channel().Logger()
	version := socks.Version(b[0])

	var enc conn.Encoder
	var dec conn.Decoder
	switch version {
	case socks.Version4:
		enc, dec = socks4.ServerEncoder{}, socks4.NewServerDecoder()
	case socks.Version5:
		enc, dec = socks5.DefaultServerEncoder, socks5.NewInitialRequestDecoder()
	default:
		if ce := logger.Check(zap.DebugLevel, "unknown protocol version"); ce != nil {
			ce.Write(zap.Stringer("version", version), zap.Stringer("remote", ctx.Channel().RemoteAddr()))
		}
		conn.Release(msg)
		ctx.Close()
		return
	}

	if ce := logger.Check(zap.DebugLevel, "protocol detected"); ce != nil {
		ce.Write(zap.Stringer("version", version))
	}

	p := ctx.Pipeline()
	if err := p.AddAfter(ctx.Name(), encoderName, conn.NewEncoderHandler(enc)); err != nil {
		u.abort(ctx, msg, err)
		return
	}
	if err := p.AddAfter(ctx.Name(), decoderName, conn.NewDecoderHandler(dec)); err != nil {
		u.abort(ctx, msg, err)
		return
	}
	if _, err := p.Remove(ctx.Name()); err != nil {
		u.abort(ctx, msg, err)
		return
	}
	ctx.FireChannelRead(msg)
}

func (u *Unification) abort(ctx *conn.Context, msg any, err error) {
	conn.Release(msg)
	ctx.Channel().Logger().Debug("install codec", zap.Error(err))
	ctx.Close()
}
