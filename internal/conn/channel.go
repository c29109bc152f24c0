package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed             = errors.New("channel closed")
	ErrAlreadyConnected   = errors.New("channel already connected")
	ErrLoopClosed         = errors.New("event loop shut down")
	ErrUnsupportedMessage = errors.New("unsupported outbound message")
)

// DefaultConnectTimeout bounds outbound connects when ChannelConfig leaves
// ConnectTimeout unset.
const DefaultConnectTimeout = 10 * time.Second

// DefaultCloseTimeout is how long a closing channel waits for flushed
// writes to reach a peer that is not reading.
const DefaultCloseTimeout = time.Second

// DialFunc opens the socket behind an outbound channel.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type ChannelConfig struct {
	ConnectTimeout time.Duration

	// CloseTimeout bounds the writes still in flight when the channel
	// closes. Zero means DefaultCloseTimeout.
	CloseTimeout time.Duration

	// KeepAlive applies to dialled TCP connections. The zero value enables
	// keep-alive; KeepAliveOff disables it.
	KeepAlive net.KeepAliveConfig

	// ReadBufferSize is the size of inbound chunks. Zero means
	// DefaultReadBufferSize.
	ReadBufferSize int

	// Dial replaces the default TCP dialer for outbound channels.
	Dial DialFunc

	Logger *zap.Logger
}

type pendingWrite struct {
	msg any
	p   *Promise
}

type addrs struct {
	local, remote net.Addr
}

// Channel is one connection and its pipeline. Its exported methods are
// safe to call from any goroutine; they hand the operation to the
// channel's event loop and return a Promise for its outcome.
type Channel struct {
	id       uuid.UUID
	loop     *EventLoop
	cfg      ChannelConfig
	pool     *BufPool
	logger   *zap.Logger
	pipeline *Pipeline

	active   atomic.Bool
	autoRead atomic.Bool
	addrs    atomic.Pointer[addrs]

	readReq     chan struct{}
	closeFuture *Promise

	// Owned by the event loop.
	conn          net.Conn
	connecting    bool
	cancelDial    context.CancelFunc
	closing       bool
	writeFailed   bool
	unflushed     []pendingWrite
	flushOnActive bool
	w             *writer
}

// NewChannel binds a channel to loop. nc is an accepted connection, or nil
// for a channel that will Connect. The channel does nothing until
// Register.
func NewChannel(loop *EventLoop, nc net.Conn, cfg ChannelConfig) *Channel {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	cfg.KeepAlive = keepAlive(cfg.KeepAlive)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Channel{
		id:          uuid.New(),
		loop:        loop,
		cfg:         cfg,
		conn:        nc,
		readReq:     make(chan struct{}, 1),
		closeFuture: NewPromise(),
	}
	c.pool = defaultBufPool
	if cfg.ReadBufferSize > 0 && cfg.ReadBufferSize != DefaultReadBufferSize {
		c.pool = NewBufPool(cfg.ReadBufferSize)
	}
	if nc != nil {
		c.addrs.Store(&addrs{local: nc.LocalAddr(), remote: nc.RemoteAddr()})
	}
	c.logger = cfg.Logger.With(zap.Stringer("channel", c.id))
	c.pipeline = newPipeline(c)
	c.autoRead.Store(true)
	return c
}

func (c *Channel) ID() uuid.UUID         { return c.id }
func (c *Channel) Loop() *EventLoop      { return c.loop }
func (c *Channel) Logger() *zap.Logger   { return c.logger }
func (c *Channel) Config() ChannelConfig { return c.cfg }

// Pipeline returns the channel's pipeline. Only use it on the event loop.
func (c *Channel) Pipeline() *Pipeline { return c.pipeline }

// IsActive reports whether the channel has a live connection.
func (c *Channel) IsActive() bool { return c.active.Load() }

func (c *Channel) AutoRead() bool { return c.autoRead.Load() }

// SetAutoRead controls whether the channel keeps reading on its own. With
// AutoRead off, each Read call lets one more chunk in.
func (c *Channel) SetAutoRead(v bool) {
	if c.autoRead.Swap(v) != v && v {
		c.loop.Execute(c.doRead)
	}
}

func (c *Channel) LocalAddr() net.Addr {
	if a := c.addrs.Load(); a != nil {
		return a.local
	}
	return nil
}

func (c *Channel) RemoteAddr() net.Addr {
	if a := c.addrs.Load(); a != nil {
		return a.remote
	}
	return nil
}

// CloseFuture completes once the channel has closed.
func (c *Channel) CloseFuture() *Promise { return c.closeFuture }

// Register runs init on the event loop to populate the pipeline. An
// accepted channel becomes active right after.
func (c *Channel) Register(init func(p *Pipeline) error) *Promise {
	p := NewPromise()
	ok := c.loop.Execute(func() {
		if init != nil {
			if err := init(c.pipeline); err != nil {
				p.Fail(fmt.Errorf("register channel: %w", err))
				c.doClose(NewPromise())
				return
			}
		}
		p.Succeed()
		if c.conn != nil {
			c.activate()
		}
	})
	if !ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		p.Fail(ErrLoopClosed)
	}
	return p
}

func (c *Channel) submit(p *Promise, task func()) *Promise {
	if !c.loop.Execute(task) {
		p.Fail(ErrLoopClosed)
	}
	return p
}

// Connect sends a connect request through the pipeline.
func (c *Channel) Connect(address string) *Promise {
	p := NewPromise()
	return c.submit(p, func() { c.pipeline.Connect(address, p) })
}

func (c *Channel) Write(msg any) *Promise {
	p := NewPromise()
	return c.submit(p, func() { c.pipeline.Write(msg, p) })
}

func (c *Channel) WriteAndFlush(msg any) *Promise {
	p := NewPromise()
	return c.submit(p, func() {
		c.pipeline.Write(msg, p)
		c.pipeline.Flush()
	})
}

func (c *Channel) Flush() {
	c.loop.Execute(c.pipeline.Flush)
}

// Read requests one more inbound chunk.
func (c *Channel) Read() {
	c.loop.Execute(c.pipeline.Read)
}

func (c *Channel) Close() *Promise {
	p := NewPromise()
	return c.submit(p, func() { c.pipeline.Close(p) })
}

func (c *Channel) activate() {
	c.active.Store(true)
	c.w = newWriter(c, c.conn)
	go c.w.run()
	go c.readLoop(c.conn)

	c.pipeline.FireChannelActive()
	if c.flushOnActive {
		c.flushOnActive = false
		c.doFlush()
	}
	if c.autoRead.Load() {
		c.doRead()
	}
}

func (c *Channel) readLoop(nc net.Conn) {
	granted := false
	for {
		if !granted {
			select {
			case <-c.readReq:
			case <-c.closeFuture.Done():
				return
			}
		}
		granted = false

		b := c.pool.Get()
		n, err := nc.Read(b.B)
		if n > 0 {
			b.B = b.B[:n]
			if !c.loop.Execute(func() { c.deliver(b) }) {
				b.Release()
				_ = nc.Close()
				return
			}
		} else {
			b.Release()
			granted = err == nil
		}

		if err != nil {
			c.loop.Execute(func() { c.readFailed(err) })
			return
		}
	}
}

func (c *Channel) deliver(b *Buf) {
	if c.closing {
		b.Release()
		return
	}
	c.pipeline.FireChannelRead(b)
	c.pipeline.FireChannelReadComplete()
	if c.autoRead.Load() {
		c.doRead()
	}
}

func (c *Channel) readFailed(err error) {
	if c.closing {
		return
	}
	if !errors.Is(err, io.EOF) {
		c.pipeline.FireErrorCaught(fmt.Errorf("read: %w", err))
	}
	c.doClose(NewPromise())
}

func (c *Channel) doRead() {
	if c.closing || !c.active.Load() {
		return
	}
	select {
	case c.readReq <- struct{}{}:
	default:
	}
}

func (c *Channel) doConnect(address string, p *Promise) {
	if c.closing {
		p.Fail(ErrClosed)
		return
	}
	if c.conn != nil || c.connecting {
		p.Fail(ErrAlreadyConnected)
		return
	}

	c.connecting = true
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	c.cancelDial = cancel

	go func() {
		nc, err := c.dial(ctx, address)
		if !c.loop.Execute(func() { c.connected(address, nc, err, p) }) {
			if nc != nil {
				_ = nc.Close()
			}
			p.Fail(ErrLoopClosed)
		}
	}()
}

func (c *Channel) dial(ctx context.Context, address string) (net.Conn, error) {
	dial := c.cfg.Dial
	if dial == nil {
		d := net.Dialer{}
		dial = d.DialContext
	}

	nc, err := dial(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	SetKeepAlive(nc, c.cfg.KeepAlive)
	return nc, nil
}

func (c *Channel) connected(address string, nc net.Conn, err error, p *Promise) {
	c.connecting = false
	c.cancelDial()
	c.cancelDial = nil

	if err == nil && c.closing {
		_ = nc.Close()
		err = ErrClosed
	}
	if err != nil {
		p.Fail(fmt.Errorf("connect %s: %w", address, err))
		c.doClose(NewPromise())
		return
	}

	c.conn = nc
	c.addrs.Store(&addrs{local: nc.LocalAddr(), remote: nc.RemoteAddr()})
	p.Succeed()
	c.activate()
}

func (c *Channel) doWrite(msg any, p *Promise) {
	if _, ok := BytesOf(msg); !ok {
		p.Fail(fmt.Errorf("write %T: %w", msg, ErrUnsupportedMessage))
		return
	}
	if c.closing {
		Release(msg)
		p.Fail(ErrClosed)
		return
	}
	c.unflushed = append(c.unflushed, pendingWrite{msg: msg, p: p})
}

func (c *Channel) doFlush() {
	if c.closing {
		return
	}
	if !c.active.Load() {
		c.flushOnActive = true
		return
	}
	if len(c.unflushed) == 0 {
		return
	}

	op := writeOp{
		bufs:     make(net.Buffers, 0, len(c.unflushed)),
		msgs:     make([]any, 0, len(c.unflushed)),
		promises: make([]*Promise, 0, len(c.unflushed)),
	}
	for _, pw := range c.unflushed {
		b, _ := BytesOf(pw.msg)
		op.bufs = append(op.bufs, b)
		op.msgs = append(op.msgs, pw.msg)
		op.promises = append(op.promises, pw.p)
	}
	c.unflushed = nil
	c.w.enqueue(op)
}

func (c *Channel) writeDone(op writeOp, err error) {
	for _, p := range op.promises {
		if err != nil {
			p.Fail(err)
		} else {
			p.Succeed()
		}
	}
	if err != nil && !c.writeFailed && !c.closing {
		c.writeFailed = true
		c.pipeline.FireErrorCaught(err)
		c.doClose(NewPromise())
	}
}

func (c *Channel) doClose(p *Promise) {
	c.closeFuture.Cascade(p)
	if c.closing {
		return
	}
	c.closing = true

	if c.cancelDial != nil {
		c.cancelDial()
	}
	for _, pw := range c.unflushed {
		Release(pw.msg)
		pw.p.Fail(ErrClosed)
	}
	c.unflushed = nil

	if c.w != nil {
		c.w.shutdown(c.cfg.CloseTimeout)
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.closed()
}

// closed runs once the socket is gone.
func (c *Channel) closed() {
	if c.active.Swap(false) {
		c.pipeline.FireChannelInactive()
	}
	c.closeFuture.Succeed()
}

type writeOp struct {
	bufs     net.Buffers
	msgs     []any
	promises []*Promise
	close    bool
}

// writer performs a channel's socket writes in order, and finally the
// close, off the event loop.
type writer struct {
	ch      *Channel
	nc      net.Conn
	closing atomic.Bool
	mu      sync.Mutex
	ops     []writeOp
	wake    chan struct{}
}

func newWriter(ch *Channel, nc net.Conn) *writer {
	return &writer{ch: ch, nc: nc, wake: make(chan struct{}, 1)}
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	w.ops = append(w.ops, op)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// shutdown queues the close behind the pending writes. A write still
// blocked after timeout fails with ErrClosed, so the close is reached even
// when the peer has stopped reading.
func (w *writer) shutdown(timeout time.Duration) {
	w.closing.Store(true)
	_ = w.nc.SetWriteDeadline(time.Now().Add(timeout))
	w.enqueue(writeOp{close: true})
}

func (w *writer) take() []writeOp {
	for {
		w.mu.Lock()
		ops := w.ops
		w.ops = nil
		w.mu.Unlock()

		if len(ops) > 0 {
			return ops
		}
		<-w.wake
	}
}

func (w *writer) run() {
	var werr error
	for {
		for _, op := range w.take() {
			if op.close {
				_ = w.nc.Close()
				w.ch.loop.Execute(w.ch.closed)
				return
			}

			if werr == nil {
				if _, err := op.bufs.WriteTo(w.nc); err != nil {
					if w.closing.Load() {
						err = ErrClosed
					}
					werr = fmt.Errorf("write: %w", err)
				}
			}
			for _, msg := range op.msgs {
				Release(msg)
			}

			err := werr
			if !w.ch.loop.Execute(func() { w.ch.writeDone(op, err) }) {
				for _, p := range op.promises {
					p.Fail(ErrLoopClosed)
				}
			}
		}
	}
}
