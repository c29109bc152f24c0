package conn

import (
	"bytes"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

type chunk struct {
	b   []byte
	buf *Buf
}

// NetConn is a blocking net.Conn view of a channel. Its Handler goes last
// in the pipeline. Reads are pulled from the channel on demand, so the
// channel should run with AutoRead off. NetConn methods must not be called
// from an event loop.
type NetConn struct {
	ch *Channel

	mu     sync.Mutex
	chunks []chunk
	err    error
	ready  chan struct{}

	deadlineMu    sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

var _ net.Conn = (*NetConn)(nil)

func NewNetConn(ch *Channel) *NetConn {
	return &NetConn{ch: ch, ready: make(chan struct{}, 1)}
}

func (n *NetConn) signal() {
	select {
	case n.ready <- struct{}{}:
	default:
	}
}

// Handler returns the pipeline stage that feeds n.
func (n *NetConn) Handler() Handler { return netConnHandler{n: n} }

type netConnHandler struct {
	HandlerAdapter
	n *NetConn
}

func (h netConnHandler) ChannelRead(_ *Context, msg any) { h.n.push(msg) }

func (h netConnHandler) ChannelInactive(*Context) { h.n.fail(io.EOF) }

func (h netConnHandler) ErrorCaught(_ *Context, err error) { h.n.fail(err) }

func (n *NetConn) push(msg any) {
	var c chunk
	switch m := msg.(type) {
	case *Buf:
		c = chunk{b: m.B, buf: m}
	case []byte:
		c = chunk{b: m}
	default:
		return
	}
	if len(c.b) == 0 {
		Release(msg)
		return
	}

	n.mu.Lock()
	n.chunks = append(n.chunks, c)
	n.mu.Unlock()
	n.signal()
}

func (n *NetConn) fail(err error) {
	n.mu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.mu.Unlock()
	n.signal()
}

func (n *NetConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n.mu.Lock()
		if len(n.chunks) > 0 {
			c := &n.chunks[0]
			k := copy(p, c.b)
			c.b = c.b[k:]
			if len(c.b) == 0 {
				if c.buf != nil {
					c.buf.Release()
				}
				n.chunks[0] = chunk{}
				n.chunks = n.chunks[1:]
			}
			n.mu.Unlock()
			return k, nil
		}
		err := n.err
		n.mu.Unlock()
		if err != nil {
			return 0, err
		}

		n.ch.Read()
		if err := n.wait(n.ready, n.deadline(true)); err != nil {
			return 0, err
		}
	}
}

// wait blocks until ch fires or the deadline passes. A zero deadline never
// passes.
func (n *NetConn) wait(ch <-chan struct{}, deadline time.Time) error {
	if deadline.IsZero() {
		<-ch
		return nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		return os.ErrDeadlineExceeded
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-t.C:
		return os.ErrDeadlineExceeded
	}
}

func (n *NetConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	pr := n.ch.WriteAndFlush(bytes.Clone(p))
	if err := n.wait(pr.Done(), n.deadline(false)); err != nil {
		return 0, err
	}
	if err := pr.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the channel and waits for it to finish.
func (n *NetConn) Close() error {
	<-n.ch.Close().Done()
	return nil
}

func (n *NetConn) LocalAddr() net.Addr  { return n.ch.LocalAddr() }
func (n *NetConn) RemoteAddr() net.Addr { return n.ch.RemoteAddr() }

func (n *NetConn) deadline(read bool) time.Time {
	n.deadlineMu.Lock()
	defer n.deadlineMu.Unlock()
	if read {
		return n.readDeadline
	}
	return n.writeDeadline
}

func (n *NetConn) SetDeadline(t time.Time) error {
	n.deadlineMu.Lock()
	n.readDeadline = t
	n.writeDeadline = t
	n.deadlineMu.Unlock()
	n.signal()
	return nil
}

func (n *NetConn) SetReadDeadline(t time.Time) error {
	n.deadlineMu.Lock()
	n.readDeadline = t
	n.deadlineMu.Unlock()
	n.signal()
	return nil
}

func (n *NetConn) SetWriteDeadline(t time.Time) error {
	n.deadlineMu.Lock()
	n.writeDeadline = t
	n.deadlineMu.Unlock()
	return nil
}
