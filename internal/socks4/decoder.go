package socks4

import (
	"bytes"
	"net/netip"
	"strings"

	"github.com/die-net/socksx/internal/socks"
)

// DecoderState is the position of a decoder within its message.
type DecoderState uint8

const (
	StateStart DecoderState = iota
	StateReadUserID
	StateReadDomain
	StateSuccess
	StateFailure
)

func (s DecoderState) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateReadUserID:
		return "ReadUserID"
	case StateReadDomain:
		return "ReadDomain"
	case StateSuccess:
		return "Success"
	case StateFailure:
		return "Failure"
	}
	return "Invalid"
}

// ServerDecoder decodes a single CommandRequest. Once the request has been
// produced, any further bytes are handed back unchanged; after a failure all
// further bytes are discarded.
type ServerDecoder struct {
	state   DecoderState
	typ     CommandType
	dstAddr string
	dstPort uint16
	userID  string
}

func NewServerDecoder() *ServerDecoder {
	return &ServerDecoder{}
}

func (d *ServerDecoder) State() DecoderState { return d.state }

// Decode consumes as much of in as the current state needs. It returns the
// number of bytes consumed and either nil, a socks.Decoded, or a []byte of
// trailing payload.
func (d *ServerDecoder) Decode(in []byte) (int, any) {
	switch d.state {
	case StateStart:
		c := socks.NewCursor(in)
		version := socks.Version(c.Byte())
		if c.Short() {
			return 0, nil
		}
		if version != socks.Version4 {
			return d.fail(in, socks.DecodeErrorf("unsupported protocol version: %d", byte(version)))
		}
		typ := CommandType(c.Byte())
		port := c.Uint16()
		ip := c.Bytes(4)
		if c.Short() {
			return 0, nil
		}
		d.typ = typ
		d.dstPort = port
		d.dstAddr = netip.AddrFrom4([4]byte(ip)).String()
		d.state = StateReadUserID
		return c.Offset(), nil

	case StateReadUserID:
		c := socks.NewCursor(in)
		s, err := readString(c, "userid")
		if c.Short() {
			return 0, nil
		}
		if err != nil {
			return d.fail(in, err)
		}
		d.userID = s
		d.state = StateReadDomain
		return c.Offset(), nil

	case StateReadDomain:
		c := socks.NewCursor(in)
		addr := d.dstAddr
		if isDomainMarker(addr) {
			s, err := readString(c, "dstAddr")
			if c.Short() {
				return 0, nil
			}
			if err != nil {
				return d.fail(in, err)
			}
			addr = s
		}
		d.dstAddr = addr
		d.state = StateSuccess
		msg := newCommandRequest(d.typ, d.dstAddr, d.dstPort, d.userID)
		return c.Offset(), socks.Decoded{Msg: msg, Result: socks.Success}

	case StateSuccess:
		if len(in) == 0 {
			return 0, nil
		}
		return len(in), bytes.Clone(in)

	default:
		return len(in), nil
	}
}

func (d *ServerDecoder) fail(in []byte, err error) (int, any) {
	d.state = StateFailure
	typ := d.typ
	if typ == 0 {
		typ = Connect
	}
	port := d.dstPort
	if port == 0 {
		port = 65535
	}
	msg := newCommandRequest(typ, d.dstAddr, port, d.userID)
	return len(in), socks.Decoded{Msg: msg, Result: socks.Failure(err)}
}

// isDomainMarker reports whether addr is a SOCKS4a 0.0.0.x marker.
func isDomainMarker(addr string) bool {
	return addr != "0.0.0.0" && strings.HasPrefix(addr, "0.0.0.")
}

// readString reads a NUL-terminated string of at most socks.MaxFieldLength
// bytes.
func readString(c *socks.Cursor, field string) (string, error) {
	n := c.IndexByte(0, socks.MaxFieldLength+1)
	if c.Short() {
		return "", nil
	}
	if n < 0 {
		return "", socks.DecodeErrorf("field '%s' longer than %d chars", field, socks.MaxFieldLength)
	}
	s := string(c.Bytes(n))
	c.Skip(1)
	return s, nil
}

// ClientDecoder decodes a single CommandResponse, with the same trailing
// byte and failure behaviour as ServerDecoder.
type ClientDecoder struct {
	state DecoderState
}

func NewClientDecoder() *ClientDecoder {
	return &ClientDecoder{}
}

func (d *ClientDecoder) State() DecoderState { return d.state }

func (d *ClientDecoder) Decode(in []byte) (int, any) {
	switch d.state {
	case StateStart:
		c := socks.NewCursor(in)
		version := c.Byte()
		if c.Short() {
			return 0, nil
		}
		if version != 0 {
			d.state = StateFailure
			err := socks.DecodeErrorf("unsupported reply version: %d (expected: 0)", version)
			return len(in), socks.Decoded{Msg: NewStatusResponse(RejectedOrFailed), Result: socks.Failure(err)}
		}
		status := Status(c.Byte())
		port := c.Uint16()
		ip := c.Bytes(4)
		if c.Short() {
			return 0, nil
		}
		msg := &CommandResponse{
			status:  status,
			dstAddr: netip.AddrFrom4([4]byte(ip)).String(),
			dstPort: port,
		}
		d.state = StateSuccess
		return c.Offset(), socks.Decoded{Msg: msg, Result: socks.Success}

	case StateSuccess:
		if len(in) == 0 {
			return 0, nil
		}
		return len(in), bytes.Clone(in)

	default:
		return len(in), nil
	}
}
