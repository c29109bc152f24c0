package socks4

import "github.com/die-net/socksx/internal/socks"

// CommandType is the CD field of a SOCKS4 request.
type CommandType byte

const (
	Connect CommandType = 0x01
	Bind    CommandType = 0x02
)

func (t CommandType) String() string {
	switch t {
	case Connect:
		return socks.EnumString("CONNECT", byte(t))
	case Bind:
		return socks.EnumString("BIND", byte(t))
	}
	return socks.EnumString("", byte(t))
}

// Status is the CD field of a SOCKS4 reply.
type Status byte

const (
	Success           Status = 0x5a
	RejectedOrFailed  Status = 0x5b
	IdentdUnreachable Status = 0x5c
	IdentdAuthFailure Status = 0x5d
)

func (s Status) IsSuccess() bool { return s == Success }

func (s Status) String() string {
	switch s {
	case Success:
		return socks.EnumString("SUCCESS", byte(s))
	case RejectedOrFailed:
		return socks.EnumString("REJECTED_OR_FAILED", byte(s))
	case IdentdUnreachable:
		return socks.EnumString("IDENTD_UNREACHABLE", byte(s))
	case IdentdAuthFailure:
		return socks.EnumString("IDENTD_AUTH_FAILURE", byte(s))
	}
	return socks.EnumString("", byte(s))
}
