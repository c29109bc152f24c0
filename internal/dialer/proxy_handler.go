package dialer

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/socks"
)

// DefaultConnectTimeout bounds a proxy handshake.
const DefaultConnectTimeout = 10 * time.Second

// State is the position of a ProxyHandler in its handshake.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateEstablished:
		return "Established"
	case StateFailed:
		return "Failed"
	}
	return "Invalid"
}

// protocolHandler is the protocol-specific half of a ProxyHandler.
type protocolHandler interface {
	protocol() string
	authScheme() string
	addCodec(ctx *conn.Context) error
	removeEncoder(ctx *conn.Context) error
	removeDecoder(ctx *conn.Context) error
	initialMessage(destination string) (any, error)
	// handleResponse reports whether the tunnel is established.
	handleResponse(h *ProxyHandler, ctx *conn.Context, msg socks.Message) (bool, error)
}

// ProxyHandler tunnels a channel through a SOCKS proxy. It sits in the
// pipeline of an outbound channel: the Connect it receives is redirected
// to the proxy, and once the channel is active it runs the handshake for
// the original destination. Writes and flushes from the stages behind it
// are held until the tunnel is established and failed if it is not.
type ProxyHandler struct {
	conn.HandlerAdapter

	proto          protocolHandler
	proxyAddress   string
	destination    string
	connectTimeout time.Duration

	state                State
	pending              pendingWrites
	flushedPrematurely   bool
	suppressReadComplete bool
	timer                *time.Timer
	connectFuture        *conn.Promise
}

func newProxyHandler(proxyAddress string, proto protocolHandler) *ProxyHandler {
	return &ProxyHandler{
		proto:          proto,
		proxyAddress:   proxyAddress,
		connectTimeout: DefaultConnectTimeout,
		connectFuture:  conn.NewPromise(),
	}
}

func (h *ProxyHandler) Protocol() string     { return h.proto.protocol() }
func (h *ProxyHandler) AuthScheme() string   { return h.proto.authScheme() }
func (h *ProxyHandler) ProxyAddress() string { return h.proxyAddress }

// Destination returns the address the tunnel leads to, once known. Call it
// on the event loop.
func (h *ProxyHandler) Destination() string { return h.destination }

// State returns the handshake state. Call it on the event loop.
func (h *ProxyHandler) State() State { return h.state }

// SetConnectTimeout changes the handshake timeout; d <= 0 disables it.
// Call it before the channel connects.
func (h *ProxyHandler) SetConnectTimeout(d time.Duration) { h.connectTimeout = d }

// ConnectFuture completes when the tunnel is established or has failed.
// A failure carries a *ProxyConnectError.
func (h *ProxyHandler) ConnectFuture() *conn.Promise { return h.connectFuture }

func (h *ProxyHandler) finished() bool {
	return h.state == StateEstablished || h.state == StateFailed
}

func (h *ProxyHandler) HandlerAdded(ctx *conn.Context) {
	if ctx.Channel().IsActive() {
		h.start(ctx)
	}
}

func (h *ProxyHandler) Connect(ctx *conn.Context, address string, p *conn.Promise) {
	if h.destination != "" {
		panic(fmt.Sprintf("dialer: %s proxy handler already connected to %s", h.Protocol(), h.destination))
	}
	h.destination = address

	p.OnComplete(func(p *conn.Promise) {
		if err := p.Err(); err != nil {
			h.fail(ctx, err)
		}
	})
	ctx.ConnectPromise(h.proxyAddress, p)
}

func (h *ProxyHandler) ChannelActive(ctx *conn.Context) {
	h.start(ctx)
	ctx.FireChannelActive()
}

func (h *ProxyHandler) start(ctx *conn.Context) {
	if h.state != StateIdle {
		return
	}
	h.state = StateAwaitingResponse

	if h.connectTimeout > 0 {
		h.timer = ctx.Channel().Loop().Schedule(h.connectTimeout, func() {
			h.fail(ctx, ErrTimeout)
		})
	}

	if h.destination == "" {
		h.fail(ctx, errors.New("destination unknown"))
		return
	}
	if err := h.proto.addCodec(ctx); err != nil {
		h.fail(ctx, fmt.Errorf("add codec: %w", err))
		return
	}
	msg, err := h.proto.initialMessage(h.destination)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	h.sendToProxy(ctx, msg)
	h.readIfNeeded(ctx)
}

// sendToProxy writes a handshake message straight to the proxy, past the
// pending queue.
func (h *ProxyHandler) sendToProxy(ctx *conn.Context, msg any) {
	ctx.WriteAndFlush(msg).OnComplete(func(p *conn.Promise) {
		if err := p.Err(); err != nil {
			h.fail(ctx, err)
		}
	})
}

func (h *ProxyHandler) readIfNeeded(ctx *conn.Context) {
	if !ctx.Channel().AutoRead() {
		ctx.Read()
	}
}

func (h *ProxyHandler) ChannelRead(ctx *conn.Context, msg any) {
	switch h.state {
	case StateEstablished:
		ctx.FireChannelRead(msg)
		return
	case StateFailed:
		conn.Release(msg)
		return
	}

	h.suppressReadComplete = true

	d, ok := msg.(socks.Decoded)
	if !ok {
		conn.Release(msg)
		h.fail(ctx, fmt.Errorf("unexpected message: %T", msg))
		return
	}
	if d.Result.IsFailure() {
		h.fail(ctx, d.Result.Cause())
		return
	}

	done, err := h.proto.handleResponse(h, ctx, d.Msg)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	if done {
		h.succeed(ctx)
	}
}

func (h *ProxyHandler) ChannelReadComplete(ctx *conn.Context) {
	if h.suppressReadComplete {
		h.suppressReadComplete = false
		h.readIfNeeded(ctx)
		return
	}
	ctx.FireChannelReadComplete()
}

func (h *ProxyHandler) ChannelInactive(ctx *conn.Context) {
	if h.finished() {
		ctx.FireChannelInactive()
		return
	}
	h.fail(ctx, ErrDisconnected)
}

func (h *ProxyHandler) ErrorCaught(ctx *conn.Context, err error) {
	if h.finished() {
		ctx.FireErrorCaught(err)
		return
	}
	h.fail(ctx, err)
}

func (h *ProxyHandler) Write(ctx *conn.Context, msg any, p *conn.Promise) {
	if h.finished() {
		h.pending.releaseAll(ctx)
		ctx.WritePromise(msg, p)
		return
	}
	h.pending.add(msg, p)
}

func (h *ProxyHandler) Flush(ctx *conn.Context) {
	if h.finished() {
		h.pending.releaseAll(ctx)
		ctx.Flush()
		return
	}
	h.flushedPrematurely = true
}

func (h *ProxyHandler) succeed(ctx *conn.Context) {
	h.state = StateEstablished
	h.cancelTimer()

	removed := h.proto.removeEncoder(ctx) == nil
	ctx.FireUserEvent(ConnectionEvent{
		Protocol:    h.Protocol(),
		AuthScheme:  h.AuthScheme(),
		Proxy:       h.proxyAddress,
		Destination: h.destination,
	})
	removed = h.proto.removeDecoder(ctx) == nil && removed

	if !removed {
		h.state = StateFailed
		h.failPendingAndClose(ctx, h.newError(errors.New("failed to remove all codec handlers added by the proxy handler")))
		return
	}

	ctx.Channel().Logger().Debug("proxy tunnel established",
		zap.String("protocol", h.Protocol()),
		zap.String("proxy", h.proxyAddress),
		zap.String("destination", h.destination))

	h.pending.releaseAll(ctx)
	if h.flushedPrematurely {
		ctx.Flush()
	}
	h.connectFuture.Succeed()
}

func (h *ProxyHandler) fail(ctx *conn.Context, cause error) {
	if h.finished() {
		return
	}
	h.state = StateFailed
	h.cancelTimer()

	err := h.newError(cause)
	_ = h.proto.removeEncoder(ctx)
	_ = h.proto.removeDecoder(ctx)

	ctx.Channel().Logger().Debug("proxy handshake failed", zap.Error(err))
	h.failPendingAndClose(ctx, err)
}

func (h *ProxyHandler) failPendingAndClose(ctx *conn.Context, err error) {
	h.pending.failAll(err)
	h.connectFuture.Fail(err)
	ctx.FireErrorCaught(err)
	ctx.Close()
}

func (h *ProxyHandler) newError(cause error) error {
	var pce *ProxyConnectError
	if errors.As(cause, &pce) {
		return cause
	}
	return &ProxyConnectError{
		Protocol:    h.Protocol(),
		AuthScheme:  h.AuthScheme(),
		Proxy:       h.proxyAddress,
		Destination: h.destination,
		Err:         cause,
	}
}

func (h *ProxyHandler) cancelTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
