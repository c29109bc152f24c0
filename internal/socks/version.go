package socks

import "fmt"

// Version is the first byte of every SOCKS request.
type Version byte

const (
	Version4 Version = 0x04
	Version5 Version = 0x05
)

// Known reports whether v is a protocol version this module speaks.
func (v Version) Known() bool {
	return v == Version4 || v == Version5
}

// String is the protocol name used in logs, errors and upstream URLs.
// Version4 covers SOCKS4a as well.
func (v Version) String() string {
	switch v {
	case Version4:
		return "socks4"
	case Version5:
		return "socks5"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(v))
}

// EnumString renders a byte-coded protocol constant as NAME(value).
func EnumString(name string, b byte) string {
	if name == "" {
		name = "UNKNOWN"
	}
	return fmt.Sprintf("%s(%d)", name, b)
}
