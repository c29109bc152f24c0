package conn

import (
	"fmt"

	"go.uber.org/zap"
)

// Handler receives the events of one pipeline stage. Every method runs on
// the channel's event loop.
type Handler interface {
	HandlerAdded(ctx *Context)
	HandlerRemoved(ctx *Context)

	ChannelActive(ctx *Context)
	ChannelInactive(ctx *Context)
	ChannelRead(ctx *Context, msg any)
	ChannelReadComplete(ctx *Context)
	UserEvent(ctx *Context, evt any)
	ErrorCaught(ctx *Context, err error)

	Connect(ctx *Context, address string, p *Promise)
	Write(ctx *Context, msg any, p *Promise)
	Flush(ctx *Context)
	Read(ctx *Context)
	Close(ctx *Context, p *Promise)
}

// HandlerAdapter forwards every event unchanged. Embed it and override the
// events a stage cares about.
type HandlerAdapter struct{}

func (HandlerAdapter) HandlerAdded(*Context) {}

func (HandlerAdapter) HandlerRemoved(*Context) {}

func (HandlerAdapter) ChannelActive(ctx *Context) {
	ctx.FireChannelActive()
}

func (HandlerAdapter) ChannelInactive(ctx *Context) {
	ctx.FireChannelInactive()
}

func (HandlerAdapter) ChannelRead(ctx *Context, msg any) {
	ctx.FireChannelRead(msg)
}

func (HandlerAdapter) ChannelReadComplete(ctx *Context) {
	ctx.FireChannelReadComplete()
}

func (HandlerAdapter) UserEvent(ctx *Context, evt any) {
	ctx.FireUserEvent(evt)
}

func (HandlerAdapter) ErrorCaught(ctx *Context, err error) {
	ctx.FireErrorCaught(err)
}

func (HandlerAdapter) Connect(ctx *Context, a string, p *Promise) {
	ctx.ConnectPromise(a, p)
}

func (HandlerAdapter) Write(ctx *Context, msg any, p *Promise) {
	ctx.WritePromise(msg, p)
}

func (HandlerAdapter) Flush(ctx *Context) {
	ctx.Flush()
}

func (HandlerAdapter) Read(ctx *Context) {
	ctx.Read()
}

func (HandlerAdapter) Close(ctx *Context, p *Promise) {
	ctx.ClosePromise(p)
}

// headHandler performs outbound operations on the channel.
type headHandler struct {
	HandlerAdapter
	ch *Channel
}

func (h *headHandler) Connect(_ *Context, address string, p *Promise) {
	h.ch.doConnect(address, p)
}

func (h *headHandler) Write(_ *Context, msg any, p *Promise) {
	h.ch.doWrite(msg, p)
}

func (h *headHandler) Flush(*Context) {
	h.ch.doFlush()
}

func (h *headHandler) Read(*Context) {
	h.ch.doRead()
}

func (h *headHandler) Close(_ *Context, p *Promise) {
	h.ch.doClose(p)
}

// tailHandler drops inbound events nobody handled.
type tailHandler struct {
	HandlerAdapter
	ch *Channel
}

func (t *tailHandler) ChannelActive(*Context) {}

func (t *tailHandler) ChannelInactive(*Context) {}

func (t *tailHandler) ChannelReadComplete(*Context) {}

func (t *tailHandler) UserEvent(*Context, any) {}

func (t *tailHandler) ChannelRead(_ *Context, msg any) {
	Release(msg)
	if ce := t.ch.logger.Check(zap.DebugLevel, "discarded inbound message reaching the pipeline tail"); ce != nil {
		ce.Write(zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (t *tailHandler) ErrorCaught(_ *Context, err error) {
	t.ch.logger.Debug("unhandled error reaching the pipeline tail", zap.Error(err))
}
