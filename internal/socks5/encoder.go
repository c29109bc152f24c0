package socks5

import (
	"encoding/binary"
	"fmt"

	"github.com/die-net/socksx/internal/socks"
)

// ClientEncoder writes the messages a client sends: InitialRequest,
// PasswordAuthRequest and CommandRequest. It is safe for concurrent use.
type ClientEncoder struct {
	addr AddressEncoder
}

// ServerEncoder writes the messages a server sends: InitialResponse,
// PasswordAuthResponse and CommandResponse. It is safe for concurrent use.
type ServerEncoder struct {
	addr AddressEncoder
}

var (
	DefaultClientEncoder = NewClientEncoder(DefaultAddressEncoder)
	DefaultServerEncoder = NewServerEncoder(DefaultAddressEncoder)
)

func NewClientEncoder(addr AddressEncoder) *ClientEncoder {
	return &ClientEncoder{addr: addr}
}

func NewServerEncoder(addr AddressEncoder) *ServerEncoder {
	return &ServerEncoder{addr: addr}
}

// Accepts reports whether msg belongs to the SOCKS5 family. Messages of the
// family that travel in the other direction are accepted and then rejected
// by Encode.
func (*ClientEncoder) Accepts(msg any) bool {
	_, ok := msg.(Message)
	return ok
}

func (e *ClientEncoder) Encode(dst []byte, msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *InitialRequest:
		dst = append(dst, byte(socks.Version5), byte(len(m.methods)))
		for _, method := range m.methods {
			dst = append(dst, byte(method))
		}
		return dst, nil
	case *PasswordAuthRequest:
		dst = append(dst, 0x01, byte(len(m.username)))
		dst = append(dst, m.username...)
		dst = append(dst, byte(len(m.password)))
		return append(dst, m.password...), nil
	case *CommandRequest:
		dst = append(dst, byte(socks.Version5), byte(m.typ), 0x00, byte(m.addrType))
		dst, err := e.addr.EncodeAddress(dst, m.addrType, m.dstAddr)
		if err != nil {
			return dst, fmt.Errorf("socks5 client encoder: %w", err)
		}
		return binary.BigEndian.AppendUint16(dst, m.dstPort), nil
	}
	return dst, fmt.Errorf("socks5 client encoder: %T: %w", msg, socks.ErrUnsupportedMessage)
}

func (*ServerEncoder) Accepts(msg any) bool {
	_, ok := msg.(Message)
	return ok
}

func (e *ServerEncoder) Encode(dst []byte, msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *InitialResponse:
		return append(dst, byte(socks.Version5), byte(m.method)), nil
	case *PasswordAuthResponse:
		return append(dst, 0x01, byte(m.status)), nil
	case *CommandResponse:
		dst = append(dst, byte(socks.Version5), byte(m.status), 0x00, byte(m.addrType))
		dst, err := e.addr.EncodeAddress(dst, m.addrType, m.bndAddr)
		if err != nil {
			return dst, fmt.Errorf("socks5 server encoder: %w", err)
		}
		return binary.BigEndian.AppendUint16(dst, m.bndPort), nil
	}
	return dst, fmt.Errorf("socks5 server encoder: %T: %w", msg, socks.ErrUnsupportedMessage)
}
