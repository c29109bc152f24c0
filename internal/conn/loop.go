package conn

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// EventLoop runs submitted tasks one at a time, in submission order, on a
// single goroutine.
type EventLoop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newEventLoop() *EventLoop {
	l := &EventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Execute queues task and reports whether the loop accepted it. The queue
// is unbounded so callers never block.
func (l *EventLoop) Execute(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Schedule runs task on the loop after delay. Stopping the returned timer
// cancels it if it has not fired yet.
func (l *EventLoop) Schedule(delay time.Duration, task func()) *time.Timer {
	return time.AfterFunc(delay, func() { l.Execute(task) })
}

func (l *EventLoop) run() {
	defer close(l.done)

	var batch []func()
	for {
		l.mu.Lock()
		batch, l.tasks = l.tasks, batch[:0]
		closed := l.closed
		l.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-l.wake
			continue
		}

		for i, task := range batch {
			task()
			batch[i] = nil
		}
	}
}

// shutdown stops accepting tasks, lets the queued ones finish and waits for
// the loop goroutine to exit.
func (l *EventLoop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

// EventLoopGroup is a fixed set of event loops handed out round-robin.
type EventLoopGroup struct {
	loops []*EventLoop
	next  atomic.Uint32
}

// NewEventLoopGroup starts n loops, or one per usable CPU when n <= 0.
func NewEventLoopGroup(n int) *EventLoopGroup {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	g := &EventLoopGroup{loops: make([]*EventLoop, n)}
	for i := range g.loops {
		g.loops[i] = newEventLoop()
	}
	return g
}

// Next returns the loop the next channel should be bound to.
func (g *EventLoopGroup) Next() *EventLoop {
	return g.loops[int(g.next.Add(1)-1)%len(g.loops)]
}

// Close shuts every loop down. Tasks submitted afterwards are dropped.
func (g *EventLoopGroup) Close() {
	for _, l := range g.loops {
		l.shutdown()
	}
}
