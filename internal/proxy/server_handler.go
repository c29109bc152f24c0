package proxy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/socks"
	"github.com/die-net/socksx/internal/socks4"
	"github.com/die-net/socksx/internal/socks5"
)

const connectName = "connect"

// ServerHandler drives the server side of a SOCKS handshake on a pipeline
// prepared by Unification. It negotiates SOCKS5 authentication and, once a
// CONNECT request arrives, hands the connection over to a connect handler.
// Anything else closes the connection.
type ServerHandler struct {
	conn.HandlerAdapter
	cfg *Config
}

func NewServerHandler(cfg *Config) *ServerHandler {
	return &ServerHandler{cfg: cfg}
}

func (h *ServerHandler) ChannelRead(ctx *conn.Context, msg any) {
	d, ok := msg.(socks.Decoded)
	if !ok {
		conn.Release(msg)
		h.reject(ctx, "unexpected message", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}
	if d.Result.IsFailure() {
		h.reject(ctx, "bad request", zap.Error(d.Result.Cause()))
		return
	}

	switch m := d.Msg.(type) {
	case *socks4.CommandRequest:
		if m.Type() != socks4.Connect {
			h.reject(ctx, "unsupported command", zap.Stringer("command", m.Type()))
			return
		}
		if h.cfg.Credentials != nil {
			ctx.WriteAndFlush(socks4.NewStatusResponse(socks4.RejectedOrFailed))
			h.reject(ctx, "socks4 without authentication")
			return
		}
		h.dispatch(ctx, d)

	case *socks5.InitialRequest:
		switch {
		case h.cfg.Credentials != nil && m.Offers(socks5.Password):
			ctx.WriteAndFlush(socks5.NewInitialResponse(socks5.Password))
			h.replaceDecoder(ctx, socks5.NewPasswordAuthRequestDecoder())
		case h.cfg.Credentials == nil && m.Offers(socks5.NoAuth):
			ctx.WriteAndFlush(socks5.NewInitialResponse(socks5.NoAuth))
			h.replaceDecoder(ctx, socks5.NewCommandRequestDecoder())
		default:
			ctx.WriteAndFlush(socks5.NewInitialResponse(socks5.Unaccepted))
			h.reject(ctx, "no acceptable auth method")
		}

	case *socks5.PasswordAuthRequest:
		if h.cfg.Credentials == nil || !h.cfg.Credentials.Valid(m.Username(), m.Password()) {
			ctx.WriteAndFlush(socks5.NewPasswordAuthResponse(socks5.AuthFailure))
			h.reject(ctx, "authentication failed", zap.String("username", m.Username()))
			return
		}
		ctx.WriteAndFlush(socks5.NewPasswordAuthResponse(socks5.AuthSuccess))
		h.replaceDecoder(ctx, socks5.NewCommandRequestDecoder())

	case *socks5.CommandRequest:
		if m.Type() != socks5.Connect {
			h.reject(ctx, "unsupported command", zap.Stringer("command", m.Type()))
			return
		}
		h.dispatch(ctx, d)

	default:
		h.reject(ctx, "unexpected message", zap.Stringer("message", d))
	}
}

// dispatch installs the connect handler in place of h and passes it the
// request.
func (h *ServerHandler) dispatch(ctx *conn.Context, req socks.Decoded) {
	p := ctx.Pipeline()
	if err := p.AddLast(connectName, newConnectHandler(h.cfg)); err != nil {
		h.reject(ctx, "install connect handler", zap.Error(err))
		return
	}
	if _, err := p.Remove(ctx.Name()); err != nil {
		h.reject(ctx, "remove server handler", zap.Error(err))
		return
	}
	ctx.FireChannelRead(req)
}

func (h *ServerHandler) replaceDecoder(ctx *conn.Context, d conn.Decoder) {
	if _, err := ctx.Pipeline().Replace(decoderName, decoderName, conn.NewDecoderHandler(d)); err != nil {
		h.reject(ctx, "replace decoder", zap.Error(err))
	}
}

func (h *ServerHandler) reject(ctx *conn.Context, reason string, fields ...zap.Field) {
	if ce := ctx.Channel().Logger().Check(zap.DebugLevel, reason); ce != nil {
		ce.Write(append(fields, zap.Stringer("remote", ctx.Channel().RemoteAddr()))...)
	}
	ctx.Close()
}

func (h *ServerHandler) ErrorCaught(ctx *conn.Context, err error) {
	ctx.Flush()
	h.reject(ctx, "connection error", zap.Error(err))
}
