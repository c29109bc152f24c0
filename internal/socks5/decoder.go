package socks5

import (
	"bytes"

	"github.com/die-net/socksx/internal/socks"
)

// DecoderState is the position of a decoder within its single message.
type DecoderState uint8

const (
	StateInit DecoderState = iota
	StateSuccess
	StateFailure
)

func (s DecoderState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSuccess:
		return "Success"
	case StateFailure:
		return "Failure"
	}
	return "Invalid"
}

// decoder holds the state shared by all single-message decoders. Decode
// methods return the number of bytes consumed and nil, a socks.Decoded or a
// []byte of trailing payload.
type decoder struct {
	state DecoderState
}

func (d *decoder) State() DecoderState { return d.state }

// tail handles the states after the message has been produced: trailing
// bytes pass through on success and are dropped on failure.
func (d *decoder) tail(in []byte) (int, any) {
	if d.state == StateSuccess && len(in) > 0 {
		return len(in), bytes.Clone(in)
	}
	return len(in), nil
}

func (d *decoder) succeed(n int, msg Message) (int, any) {
	d.state = StateSuccess
	return n, socks.Decoded{Msg: msg, Result: socks.Success}
}

func (d *decoder) fail(in []byte, msg Message, err error) (int, any) {
	d.state = StateFailure
	return len(in), socks.Decoded{Msg: msg, Result: socks.Failure(err)}
}

func versionError(got byte) error {
	return socks.DecodeErrorf("unsupported version: %d (expected: %d)", got, byte(socks.Version5))
}

// InitialRequestDecoder decodes the client's method offer on the server.
type InitialRequestDecoder struct{ decoder }

func NewInitialRequestDecoder() *InitialRequestDecoder { return &InitialRequestDecoder{} }

func (d *InitialRequestDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	placeholder := &InitialRequest{methods: []AuthMethod{NoAuth}}

	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != byte(socks.Version5) {
		return d.fail(in, placeholder, versionError(version))
	}
	n := int(c.Byte())
	raw := c.Bytes(n)
	if c.Short() {
		return 0, nil
	}
	if n == 0 {
		return d.fail(in, placeholder, socks.DecodeErrorf("no authentication methods offered"))
	}
	methods := make([]AuthMethod, n)
	for i, b := range raw {
		methods[i] = AuthMethod(b)
	}
	return d.succeed(c.Offset(), &InitialRequest{methods: methods})
}

// InitialResponseDecoder decodes the server's method choice on the client.
type InitialResponseDecoder struct{ decoder }

func NewInitialResponseDecoder() *InitialResponseDecoder { return &InitialResponseDecoder{} }

func (d *InitialResponseDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != byte(socks.Version5) {
		return d.fail(in, NewInitialResponse(Unaccepted), versionError(version))
	}
	method := AuthMethod(c.Byte())
	if c.Short() {
		return 0, nil
	}
	return d.succeed(c.Offset(), NewInitialResponse(method))
}

// PasswordAuthRequestDecoder decodes RFC 1929 credentials on the server.
type PasswordAuthRequestDecoder struct{ decoder }

func NewPasswordAuthRequestDecoder() *PasswordAuthRequestDecoder {
	return &PasswordAuthRequestDecoder{}
}

func (d *PasswordAuthRequestDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != 0x01 {
		err := socks.DecodeErrorf("unsupported subnegotiation version: %d (expected: 1)", version)
		return d.fail(in, &PasswordAuthRequest{}, err)
	}
	username := c.Bytes(int(c.Byte()))
	password := c.Bytes(int(c.Byte()))
	if c.Short() {
		return 0, nil
	}
	return d.succeed(c.Offset(), &PasswordAuthRequest{username: string(username), password: string(password)})
}

// PasswordAuthResponseDecoder decodes the server's verdict on the client.
type PasswordAuthResponseDecoder struct{ decoder }

func NewPasswordAuthResponseDecoder() *PasswordAuthResponseDecoder {
	return &PasswordAuthResponseDecoder{}
}

func (d *PasswordAuthResponseDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != 0x01 {
		err := socks.DecodeErrorf("unsupported subnegotiation version: %d (expected: 1)", version)
		return d.fail(in, NewPasswordAuthResponse(AuthFailure), err)
	}
	status := PasswordAuthStatus(c.Byte())
	if c.Short() {
		return 0, nil
	}
	return d.succeed(c.Offset(), NewPasswordAuthResponse(status))
}

// CommandRequestDecoder decodes a command request on the server.
type CommandRequestDecoder struct {
	decoder
	addr AddressDecoder
}

func NewCommandRequestDecoder() *CommandRequestDecoder {
	return NewCommandRequestDecoderWith(DefaultAddressDecoder)
}

func NewCommandRequestDecoderWith(addr AddressDecoder) *CommandRequestDecoder {
	return &CommandRequestDecoder{addr: addr}
}

func (d *CommandRequestDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	placeholder := &CommandRequest{typ: Connect, addrType: IPv4, dstAddr: "0.0.0.0", dstPort: 1}

	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != byte(socks.Version5) {
		return d.fail(in, placeholder, versionError(version))
	}
	typ := CommandType(c.Byte())
	c.Skip(1) // RSV
	addrType := AddressType(c.Byte())
	if c.Short() {
		return 0, nil
	}
	addr, err := d.addr.DecodeAddress(c, addrType)
	if err != nil {
		return d.fail(in, placeholder, err)
	}
	port := c.Uint16()
	if c.Short() {
		return 0, nil
	}
	return d.succeed(c.Offset(), &CommandRequest{typ: typ, addrType: addrType, dstAddr: addr, dstPort: port})
}

// CommandResponseDecoder decodes a command reply on the client.
type CommandResponseDecoder struct {
	decoder
	addr AddressDecoder
}

func NewCommandResponseDecoder() *CommandResponseDecoder {
	return NewCommandResponseDecoderWith(DefaultAddressDecoder)
}

func NewCommandResponseDecoderWith(addr AddressDecoder) *CommandResponseDecoder {
	return &CommandResponseDecoder{addr: addr}
}

func (d *CommandResponseDecoder) Decode(in []byte) (int, any) {
	if d.state != StateInit {
		return d.tail(in)
	}
	placeholder := &CommandResponse{status: StatusFailure, addrType: IPv4}

	c := socks.NewCursor(in)
	version := c.Byte()
	if c.Short() {
		return 0, nil
	}
	if version != byte(socks.Version5) {
		return d.fail(in, placeholder, versionError(version))
	}
	status := CommandStatus(c.Byte())
	c.Skip(1) // RSV
	addrType := AddressType(c.Byte())
	if c.Short() {
		return 0, nil
	}
	addr, err := d.addr.DecodeAddress(c, addrType)
	if err != nil {
		return d.fail(in, placeholder, err)
	}
	port := c.Uint16()
	if c.Short() {
		return 0, nil
	}
	return d.succeed(c.Offset(), &CommandResponse{status: status, addrType: addrType, bndAddr: addr, bndPort: port})
}
