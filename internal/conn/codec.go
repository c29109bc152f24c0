package conn

import "fmt"

// Decoder is an incremental decoder. Decode consumes a prefix of in and
// returns how many bytes it took together with nil or one decoded value.
// It returns (0, nil) when in holds too few bytes to make progress.
type Decoder interface {
	Decode(in []byte) (n int, out any)
}

// Encoder turns outbound messages into bytes.
type Encoder interface {
	Accepts(msg any) bool
	Encode(dst []byte, msg any) ([]byte, error)
}

// DecoderHandler feeds inbound bytes to a Decoder and fires what it
// produces. Bytes it still holds when it leaves the pipeline are passed on
// to the next stage.
type DecoderHandler struct {
	HandlerAdapter
	decoder Decoder
	cum     []byte
}

func NewDecoderHandler(d Decoder) *DecoderHandler {
	return &DecoderHandler{decoder: d}
}

func (h *DecoderHandler) Decoder() Decoder { return h.decoder }

func (h *DecoderHandler) ChannelRead(ctx *Context, msg any) {
	b, ok := BytesOf(msg)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	h.cum = append(h.cum, b...)
	Release(msg)

	for len(h.cum) > 0 && !ctx.Removed() {
		n, out := h.decoder.Decode(h.cum)
		h.cum = h.cum[n:]
		if out != nil {
			ctx.FireChannelRead(out)
		}
		if n == 0 && out == nil {
			break
		}
	}

	if len(h.cum) == 0 {
		h.cum = nil
	} else if cap(h.cum) > 2*len(h.cum) {
		h.cum = append([]byte(nil), h.cum...)
	}
}

func (h *DecoderHandler) HandlerRemoved(ctx *Context) {
	rest := h.cum
	h.cum = nil
	if len(rest) > 0 {
		ctx.FireChannelRead(rest)
		ctx.FireChannelReadComplete()
	}
}

// EncoderHandler encodes the outbound messages its Encoder accepts and
// passes everything else through.
type EncoderHandler struct {
	HandlerAdapter
	encoder Encoder
}

func NewEncoderHandler(e Encoder) *EncoderHandler {
	return &EncoderHandler{encoder: e}
}

func (h *EncoderHandler) Write(ctx *Context, msg any, p *Promise) {
	if !h.encoder.Accepts(msg) {
		ctx.WritePromise(msg, p)
		return
	}
	b, err := h.encoder.Encode(nil, msg)
	if err != nil {
		p.Fail(fmt.Errorf("encode %T: %w", msg, err))
		return
	}
	ctx.WritePromise(b, p)
}
