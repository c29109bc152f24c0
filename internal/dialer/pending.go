package dialer

import "github.com/die-net/socksx/internal/conn"

type pendingWrite struct {
	msg any
	p   *conn.Promise
}

// pendingWrites holds application writes issued before the tunnel is up,
// in submission order.
type pendingWrites struct {
	q []pendingWrite
}

func (w *pendingWrites) add(msg any, p *conn.Promise) {
	w.q = append(w.q, pendingWrite{msg: msg, p: p})
}

func (w *pendingWrites) len() int { return len(w.q) }

// releaseAll writes every queued message past ctx. The queue is detached
// first, so writes issued meanwhile are not interleaved with it.
func (w *pendingWrites) releaseAll(ctx *conn.Context) {
	q := w.q
	w.q = nil
	for _, pw := range q {
		ctx.WritePromise(pw.msg, pw.p)
	}
}

func (w *pendingWrites) failAll(err error) {
	q := w.q
	w.q = nil
	for _, pw := range q {
		conn.Release(pw.msg)
		pw.p.Fail(err)
	}
}
