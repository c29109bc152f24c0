package conn

import (
	"context"
	"sync"
)

// Promise is the pending result of an outbound operation. Listeners run
// on the goroutine that completes it; inside the runtime that is always
// the channel's event loop.
type Promise struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	completed bool
	listeners []func(*Promise)
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Succeed completes p successfully. It reports false if p was already done.
func (p *Promise) Succeed() bool { return p.complete(nil) }

// Fail completes p with err. It reports false if p was already done.
func (p *Promise) Fail(err error) bool {
	if err == nil {
		panic("conn: Promise.Fail with nil error")
	}
	return p.complete(err)
}

func (p *Promise) complete(err error) bool {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return false
	}
	p.completed = true
	p.err = err
	listeners := p.listeners
	p.listeners = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
	return true
}

// Done is closed once p completes.
func (p *Promise) Done() <-chan struct{} { return p.done }

func (p *Promise) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the failure cause, or nil while pending or after success.
func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// OnComplete registers fn to run when p completes, or runs it immediately
// if p is already done.
func (p *Promise) OnComplete(fn func(*Promise)) {
	p.mu.Lock()
	if !p.completed {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn(p)
}

// Cascade completes other with p's outcome.
func (p *Promise) Cascade(other *Promise) {
	p.OnComplete(func(p *Promise) {
		if err := p.Err(); err != nil {
			other.Fail(err)
			return
		}
		other.Succeed()
	})
}

// Wait blocks until p completes or ctx is done. It must not be called from
// an event loop.
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
