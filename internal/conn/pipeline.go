package conn

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName = errors.New("duplicate handler name")
	ErrNoSuchHandler = errors.New("no such handler")
)

// Context binds a Handler to its position in a Pipeline. A removed context
// keeps its links, so events a handler fires after removing itself still
// reach its former neighbours; a replaced context links to its
// replacement in both directions.
type Context struct {
	name     string
	handler  Handler
	pipeline *Pipeline
	prev     *Context
	next     *Context
	removed  bool
}

func (c *Context) Name() string        { return c.name }
func (c *Context) Handler() Handler    { return c.handler }
func (c *Context) Pipeline() *Pipeline { return c.pipeline }
func (c *Context) Channel() *Channel   { return c.pipeline.ch }

// Removed reports whether the context's handler has left the pipeline.
func (c *Context) Removed() bool { return c.removed }

func (c *Context) FireChannelActive() {
	n := c.next
	n.handler.ChannelActive(n)
}

func (c *Context) FireChannelInactive() {
	n := c.next
	n.handler.ChannelInactive(n)
}

func (c *Context) FireChannelRead(msg any) {
	n := c.next
	n.handler.ChannelRead(n, msg)
}

func (c *Context) FireChannelReadComplete() {
	n := c.next
	n.handler.ChannelReadComplete(n)
}

func (c *Context) FireUserEvent(evt any) {
	n := c.next
	n.handler.UserEvent(n, evt)
}

func (c *Context) FireErrorCaught(err error) {
	n := c.next
	n.handler.ErrorCaught(n, err)
}

// Connect asks the stages before c to connect the channel to address.
func (c *Context) Connect(address string) *Promise {
	p := NewPromise()
	c.ConnectPromise(address, p)
	return p
}

func (c *Context) ConnectPromise(address string, p *Promise) {
	pr := c.prev
	pr.handler.Connect(pr, address, p)
}

// Write passes msg to the stages before c. Nothing reaches the socket
// until a Flush.
func (c *Context) Write(msg any) *Promise {
	p := NewPromise()
	c.WritePromise(msg, p)
	return p
}

func (c *Context) WritePromise(msg any, p *Promise) {
	pr := c.prev
	pr.handler.Write(pr, msg, p)
}

func (c *Context) WriteAndFlush(msg any) *Promise {
	p := c.Write(msg)
	c.Flush()
	return p
}

func (c *Context) Flush() {
	pr := c.prev
	pr.handler.Flush(pr)
}

// Read requests more inbound data. It is only needed when AutoRead is off.
func (c *Context) Read() {
	pr := c.prev
	pr.handler.Read(pr)
}

func (c *Context) Close() *Promise {
	p := NewPromise()
	c.ClosePromise(p)
	return p
}

func (c *Context) ClosePromise(p *Promise) {
	pr := c.prev
	pr.handler.Close(pr, p)
}

// Pipeline is the ordered chain of handlers of one Channel. Its methods
// must be called on the channel's event loop, or before the channel is
// registered.
type Pipeline struct {
	ch    *Channel
	head  *Context
	tail  *Context
	names map[string]*Context
}

func newPipeline(ch *Channel) *Pipeline {
	p := &Pipeline{ch: ch, names: make(map[string]*Context)}
	p.head = &Context{name: "head", handler: &headHandler{ch: ch}, pipeline: p}
	p.tail = &Context{name: "tail", handler: &tailHandler{ch: ch}, pipeline: p}
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

func (p *Pipeline) Channel() *Channel { return p.ch }

func (p *Pipeline) AddFirst(name string, h Handler) error {
	return p.insertAfter(p.head, name, h)
}

func (p *Pipeline) AddLast(name string, h Handler) error {
	return p.insertAfter(p.tail.prev, name, h)
}

// AddBefore inserts h directly in front of the handler named base.
func (p *Pipeline) AddBefore(base, name string, h Handler) error {
	c, ok := p.names[base]
	if !ok {
		return fmt.Errorf("add %q before %q: %w", name, base, ErrNoSuchHandler)
	}
	return p.insertAfter(c.prev, name, h)
}

// AddAfter inserts h directly behind the handler named base.
func (p *Pipeline) AddAfter(base, name string, h Handler) error {
	c, ok := p.names[base]
	if !ok {
		return fmt.Errorf("add %q after %q: %w", name, base, ErrNoSuchHandler)
	}
	return p.insertAfter(c, name, h)
}

func (p *Pipeline) insertAfter(prev *Context, name string, h Handler) error {
	if _, ok := p.names[name]; ok {
		return fmt.Errorf("add %q: %w", name, ErrDuplicateName)
	}
	c := &Context{name: name, handler: h, pipeline: p, prev: prev, next: prev.next}
	prev.next.prev = c
	prev.next = c
	p.names[name] = c
	h.HandlerAdded(c)
	return nil
}

// Remove takes the handler named name out of the pipeline and returns it.
func (p *Pipeline) Remove(name string) (Handler, error) {
	c, ok := p.names[name]
	if !ok {
		return nil, fmt.Errorf("remove %q: %w", name, ErrNoSuchHandler)
	}
	delete(p.names, name)
	c.prev.next = c.next
	c.next.prev = c.prev
	c.removed = true
	c.handler.HandlerRemoved(c)
	return c.handler, nil
}

// Replace swaps the handler named oldName for h, registered as newName, and
// returns the old handler. Events the old handler fires afterwards are
// delivered to h.
func (p *Pipeline) Replace(oldName, newName string, h Handler) (Handler, error) {
	old, ok := p.names[oldName]
	if !ok {
		return nil, fmt.Errorf("replace %q: %w", oldName, ErrNoSuchHandler)
	}
	if _, dup := p.names[newName]; dup && newName != oldName {
		return nil, fmt.Errorf("replace %q with %q: %w", oldName, newName, ErrDuplicateName)
	}

	c := &Context{name: newName, handler: h, pipeline: p, prev: old.prev, next: old.next}
	old.prev.next = c
	old.next.prev = c
	delete(p.names, oldName)
	p.names[newName] = c

	old.prev = c
	old.next = c
	old.removed = true

	h.HandlerAdded(c)
	old.handler.HandlerRemoved(old)
	return old.handler, nil
}

// Get returns the handler named name, or nil.
func (p *Pipeline) Get(name string) Handler {
	if c, ok := p.names[name]; ok {
		return c.handler
	}
	return nil
}

// Context returns the context of the handler named name, or nil.
func (p *Pipeline) Context(name string) *Context {
	return p.names[name]
}

// Names lists the handler names from head to tail.
func (p *Pipeline) Names() []string {
	var names []string
	for c := p.head.next; c != p.tail; c = c.next {
		names = append(names, c.name)
	}
	return names
}

func (p *Pipeline) FireChannelActive()        { p.head.FireChannelActive() }
func (p *Pipeline) FireChannelInactive()      { p.head.FireChannelInactive() }
func (p *Pipeline) FireChannelRead(msg any)   { p.head.FireChannelRead(msg) }
func (p *Pipeline) FireChannelReadComplete()  { p.head.FireChannelReadComplete() }
func (p *Pipeline) FireUserEvent(evt any)     { p.head.FireUserEvent(evt) }
func (p *Pipeline) FireErrorCaught(err error) { p.head.FireErrorCaught(err) }

func (p *Pipeline) Connect(address string, pr *Promise) { p.tail.ConnectPromise(address, pr) }
func (p *Pipeline) Write(msg any, pr *Promise)          { p.tail.WritePromise(msg, pr) }
func (p *Pipeline) Flush()                              { p.tail.Flush() }
func (p *Pipeline) Read()                               { p.tail.Read() }
func (p *Pipeline) Close(pr *Promise)                   { p.tail.ClosePromise(pr) }
