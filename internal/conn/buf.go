package conn

import "sync"

// DefaultReadBufferSize is the size of the chunks a channel reads into.
const DefaultReadBufferSize = 32 * 1024

// Buf is a pooled chunk of inbound bytes. Whoever consumes a Buf, by
// writing it to a channel or by copying out of it, releases it exactly
// once.
type Buf struct {
	B    []byte
	pool *BufPool
}

// Release hands the chunk back to its pool.
func (b *Buf) Release() {
	p := b.pool
	if p == nil {
		return
	}
	b.pool = nil
	if cap(b.B) != p.size {
		b.B = nil
		return
	}
	b.B = b.B[:0]
	p.pool.Put(b)
}

// BufPool recycles fixed-size read chunks.
type BufPool struct {
	size int
	pool sync.Pool
}

func NewBufPool(size int) *BufPool {
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	bp := &BufPool{size: size}
	bp.pool.New = func() any {
		return &Buf{B: make([]byte, 0, size)}
	}
	return bp
}

// Get returns a Buf whose B has the pool's full size.
func (p *BufPool) Get() *Buf {
	b := p.pool.Get().(*Buf)
	b.B = b.B[:p.size]
	b.pool = p
	return b
}

var defaultBufPool = NewBufPool(DefaultReadBufferSize)

// Release releases msg if it is a *Buf and ignores anything else. Handlers
// call it on messages they drop.
func Release(msg any) {
	if b, ok := msg.(*Buf); ok {
		b.Release()
	}
}

// BytesOf returns the payload of a byte message.
func BytesOf(msg any) ([]byte, bool) {
	switch m := msg.(type) {
	case *Buf:
		return m.B, true
	case []byte:
		return m, true
	}
	return nil, false
}
