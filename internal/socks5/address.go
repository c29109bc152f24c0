package socks5

import (
	"fmt"
	"net/netip"

	"github.com/die-net/socksx/internal/socks"
)

// AddressEncoder writes the address part of a command request or reply.
type AddressEncoder interface {
	EncodeAddress(dst []byte, t AddressType, addr string) ([]byte, error)
}

// AddressDecoder reads the address part of a command request or reply.
// Implementations must tolerate a short cursor.
type AddressDecoder interface {
	DecodeAddress(c *socks.Cursor, t AddressType) (string, error)
}

type defaultAddressCodec struct{}

var (
	DefaultAddressEncoder AddressEncoder = defaultAddressCodec{}
	DefaultAddressDecoder AddressDecoder = defaultAddressCodec{}
)

// EncodeAddress writes addr in its wire form. An empty addr is written as
// the zero address of its type.
func (defaultAddressCodec) EncodeAddress(dst []byte, t AddressType, addr string) ([]byte, error) {
	switch t {
	case IPv4:
		if addr == "" {
			return append(dst, 0, 0, 0, 0), nil
		}
		ip, err := netip.ParseAddr(addr)
		if err != nil || !ip.Is4() {
			return dst, fmt.Errorf("encode address %q as %s", addr, t)
		}
		a := ip.As4()
		return append(dst, a[:]...), nil
	case Domain:
		if addr == "" {
			return append(dst, 1, 0), nil
		}
		if len(addr) > socks.MaxFieldLength {
			return dst, fmt.Errorf("encode address: %d bytes", len(addr))
		}
		dst = append(dst, byte(len(addr)))
		return append(dst, addr...), nil
	case IPv6:
		if addr == "" {
			var zero [16]byte
			return append(dst, zero[:]...), nil
		}
		ip, err := netip.ParseAddr(addr)
		if err != nil || !ip.Is6() {
			return dst, fmt.Errorf("encode address %q as %s", addr, t)
		}
		a := ip.As16()
		return append(dst, a[:]...), nil
	}
	return dst, fmt.Errorf("unsupported addrType: %d", byte(t))
}

func (defaultAddressCodec) DecodeAddress(c *socks.Cursor, t AddressType) (string, error) {
	switch t {
	case IPv4:
		b := c.Bytes(4)
		if c.Short() {
			return "", nil
		}
		return netip.AddrFrom4([4]byte(b)).String(), nil
	case Domain:
		n := int(c.Byte())
		b := c.Bytes(n)
		if c.Short() {
			return "", nil
		}
		return string(b), nil
	case IPv6:
		b := c.Bytes(16)
		if c.Short() {
			return "", nil
		}
		return netip.AddrFrom16([16]byte(b)).String(), nil
	}
	return "", socks.DecodeErrorf("unsupported address type: %d", byte(t))
}
