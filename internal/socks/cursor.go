package socks

import (
	"bytes"
	"encoding/binary"
)

// Cursor reads fields from a byte slice without ever failing on short input.
// Once a read runs past the end, Short reports true and every later read
// returns zero values; the caller discards the partial state and retries
// once more bytes have arrived.
type Cursor struct {
	b     []byte
	off   int
	short bool
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Short reports whether any read ran out of input.
func (c *Cursor) Short() bool { return c.short }

// Offset is the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.b) - c.off }

func (c *Cursor) need(n int) bool {
	if c.short || len(c.b)-c.off < n {
		c.short = true
		return false
	}
	return true
}

func (c *Cursor) Byte() byte {
	if !c.need(1) {
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *Cursor) Uint16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

// Bytes returns the next n bytes. The result aliases the input.
func (c *Cursor) Bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n int) {
	if c.need(n) {
		c.off += n
	}
}

// IndexByte looks for v within the next window bytes and returns its offset
// from the current position. It returns -1 when window bytes are available
// and none of them is v; if fewer are available it marks the cursor short.
func (c *Cursor) IndexByte(v byte, window int) int {
	if c.short {
		return -1
	}
	avail := c.b[c.off:]
	if len(avail) > window {
		avail = avail[:window]
	}
	if i := bytes.IndexByte(avail, v); i >= 0 {
		return i
	}
	if len(avail) < window {
		c.short = true
	}
	return -1
}
