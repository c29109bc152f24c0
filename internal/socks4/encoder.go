package socks4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/die-net/socksx/internal/socks"
)

var domainMarker = [4]byte{0x00, 0x00, 0x00, 0x01}

// ClientEncoder writes CommandRequests. It holds no state and may be shared.
type ClientEncoder struct{}

// ServerEncoder writes CommandResponses. It holds no state and may be shared.
type ServerEncoder struct{}

func (ClientEncoder) Accepts(msg any) bool {
	_, ok := msg.(*CommandRequest)
	return ok
}

func (ClientEncoder) Encode(dst []byte, msg any) ([]byte, error) {
	r, ok := msg.(*CommandRequest)
	if !ok {
		return dst, fmt.Errorf("socks4 client encoder: %T: %w", msg, socks.ErrUnsupportedMessage)
	}

	dst = append(dst, byte(socks.Version4), byte(r.typ))
	dst = binary.BigEndian.AppendUint16(dst, r.dstPort)

	if ip, err := netip.ParseAddr(r.dstAddr); err == nil && ip.Is4() {
		a := ip.As4()
		dst = append(dst, a[:]...)
		dst = append(dst, r.userID...)
		return append(dst, 0), nil
	}

	dst = append(dst, domainMarker[:]...)
	dst = append(dst, r.userID...)
	dst = append(dst, 0)
	dst = append(dst, r.dstAddr...)
	return append(dst, 0), nil
}

func (ServerEncoder) Accepts(msg any) bool {
	_, ok := msg.(*CommandResponse)
	return ok
}

func (ServerEncoder) Encode(dst []byte, msg any) ([]byte, error) {
	r, ok := msg.(*CommandResponse)
	if !ok {
		return dst, fmt.Errorf("socks4 server encoder: %T: %w", msg, socks.ErrUnsupportedMessage)
	}

	dst = append(dst, 0x00, byte(r.status))
	dst = binary.BigEndian.AppendUint16(dst, r.dstPort)

	var a [4]byte
	if r.dstAddr != "" {
		a = netip.MustParseAddr(r.dstAddr).As4()
	}
	return append(dst, a[:]...), nil
}
