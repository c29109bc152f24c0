package proxy

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/dialer"
	"github.com/die-net/socksx/internal/socks"
	"github.com/die-net/socksx/internal/socks4"
	"github.com/die-net/socksx/internal/socks5"
)

const (
	dialName  = "dial"
	relayName = "relay"
)

// connectHandler serves one CONNECT request. It opens the outbound channel
// on the inbound channel's event loop, answers the client and joins the
// two channels with a Relay on each side. Reading from the client pauses
// until then; a chunk already in flight is held and sent first.
type connectHandler struct {
	conn.HandlerAdapter
	cfg *Config

	req      socks.Message
	address  string
	outbound *conn.Channel
	held     []any
	done     bool
}

func newConnectHandler(cfg *Config) *connectHandler {
	return &connectHandler{cfg: cfg}
}

func (h *connectHandler) ChannelRead(ctx *conn.Context, msg any) {
	if h.req != nil {
		if h.done {
			conn.Release(msg)
			return
		}
		h.held = append(h.held, msg)
		return
	}

	d, ok := msg.(socks.Decoded)
	if !ok {
		conn.Release(msg)
		ctx.Close()
		return
	}
	h.connect(ctx, d.Msg)
}

func (h *connectHandler) connect(ctx *conn.Context, req socks.Message) {
	h.req = req
	ctx.Channel().SetAutoRead(false)
	host, port, err := destination(req)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	h.address = net.JoinHostPort(host, strconv.Itoa(int(port)))

	failed := func(p *conn.Promise) {
		if err := p.Err(); err != nil {
			h.fail(ctx, err)
		}
	}

	ph := h.cfg.proxyHandler()
	h.outbound = conn.NewChannel(ctx.Channel().Loop(), nil, h.cfg.outboundConfig())
	h.outbound.Register(func(p *conn.Pipeline) error {
		if ph != nil {
			if err := p.AddLast("proxy", ph); err != nil {
				return err
			}
			ph.ConnectFuture().OnComplete(failed)
		}
		return p.AddLast(dialName, &outboundHandler{h: h, inbound: ctx, tunneled: ph != nil})
	}).OnComplete(failed)
	h.outbound.Connect(h.address).OnComplete(failed)
}

// established joins the channels once the outbound side can carry data.
// It runs inside an event of outCtx.
func (h *connectHandler) established(ctx, outCtx *conn.Context) {
	if h.done {
		outCtx.Close()
		return
	}
	resp, err := successResponse(h.req)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	h.done = true

	inbound, outbound := ctx.Channel(), outCtx.Channel()
	ctx.WriteAndFlush(resp)

	if err := h.install(ctx, outCtx); err != nil {
		ctx.Channel().Logger().Debug("install relay", zap.Error(err))
		h.releaseHeld()
		ctx.Close()
		outCtx.Close()
		return
	}

	for _, msg := range h.held {
		outbound.Write(msg)
	}
	h.held = nil
	outbound.Flush()

	p := ctx.Pipeline()
	_, _ = p.Remove(ctx.Name())
	// The inbound codec is finished; bytes it still holds go to the relay.
	_, _ = p.Remove(decoderName)
	_, _ = p.Remove(encoderName)
	inbound.SetAutoRead(true)

	if ce := inbound.Logger().Check(zap.DebugLevel, "relay established"); ce != nil {
		ce.Write(zap.Stringer("remote", inbound.RemoteAddr()), zap.String("destination", h.address),
			zap.Stringer("outbound", outbound.ID()))
	}
}

func (h *connectHandler) install(ctx, outCtx *conn.Context) error {
	outP := outCtx.Pipeline()
	if err := outP.AddLast(relayName, NewRelay(ctx.Channel())); err != nil {
		return err
	}
	if _, err := outP.Remove(outCtx.Name()); err != nil {
		return err
	}
	return ctx.Pipeline().AddLast(relayName, NewRelay(outCtx.Channel()))
}

func (h *connectHandler) fail(ctx *conn.Context, err error) {
	if h.done {
		return
	}
	h.done = true

	if ce := ctx.Channel().Logger().Check(zap.DebugLevel, "connect failed"); ce != nil {
		ce.Write(zap.String("destination", h.address), zap.Error(err))
	}

	h.releaseHeld()
	if ctx.Channel().IsActive() && h.req != nil {
		ctx.WriteAndFlush(failureResponse(h.req))
	}
	ctx.Close()
	if h.outbound != nil {
		h.outbound.Close()
	}
}

func (h *connectHandler) releaseHeld() {
	for _, msg := range h.held {
		conn.Release(msg)
	}
	h.held = nil
}

func (h *connectHandler) ChannelInactive(ctx *conn.Context) {
	if !h.done {
		h.done = true
		h.releaseHeld()
		if h.outbound != nil {
			h.outbound.Close()
		}
	}
	ctx.FireChannelInactive()
}

func (h *connectHandler) ErrorCaught(ctx *conn.Context, err error) {
	ctx.Channel().Logger().Debug("inbound error", zap.Error(err))
	ctx.Close()
}

// outboundHandler reports the outbound channel's progress to its
// connectHandler. It leaves the outbound pipeline when the relay takes
// over.
type outboundHandler struct {
	conn.HandlerAdapter
	h        *connectHandler
	inbound  *conn.Context
	tunneled bool
}

func (o *outboundHandler) ChannelActive(ctx *conn.Context) {
	if !o.tunneled {
		o.h.established(o.inbound, ctx)
	}
	ctx.FireChannelActive()
}

func (o *outboundHandler) UserEvent(ctx *conn.Context, evt any) {
	if _, ok := evt.(dialer.ConnectionEvent); ok && o.tunneled {
		o.h.established(o.inbound, ctx)
		return
	}
	ctx.FireUserEvent(evt)
}

func (o *outboundHandler) ErrorCaught(ctx *conn.Context, err error) {
	o.h.fail(o.inbound, err)
	ctx.Close()
}

func destination(req socks.Message) (string, uint16, error) {
	switch r := req.(type) {
	case *socks4.CommandRequest:
		return r.DstAddr(), r.DstPort(), nil
	case *socks5.CommandRequest:
		return r.DstAddr(), r.DstPort(), nil
	}
	return "", 0, fmt.Errorf("unexpected request: %T", req)
}

// successResponse echoes the requested destination back to the client.
// A SOCKS4a domain is answered without an address.
func successResponse(req socks.Message) (any, error) {
	switch r := req.(type) {
	case *socks4.CommandRequest:
		addr := r.DstAddr()
		if ip, err := netip.ParseAddr(addr); err != nil || !ip.Is4() {
			addr = ""
		}
		return socks4.NewCommandResponse(socks4.Success, addr, int(r.DstPort()))
	case *socks5.CommandRequest:
		return socks5.NewCommandResponse(socks5.StatusSuccess, r.DstAddrType(), r.DstAddr(), int(r.DstPort()))
	}
	return nil, fmt.Errorf("unexpected request: %T", req)
}

func failureResponse(req socks.Message) any {
	if r, ok := req.(*socks5.CommandRequest); ok {
		if resp, err := socks5.NewStatusResponse(socks5.StatusFailure, r.DstAddrType()); err == nil {
			return resp
		}
		resp, _ := socks5.NewStatusResponse(socks5.StatusFailure, socks5.IPv4)
		return resp
	}
	return socks4.NewStatusResponse(socks4.RejectedOrFailed)
}
