package dialer

import (
	"errors"
	"fmt"
)

var (
	ErrDisconnected    = errors.New("disconnected")
	ErrTimeout         = errors.New("timeout")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrConnectRejected = errors.New("connect rejected")
)

// ProxyConnectError is the single terminal error of a failed proxy
// handshake.
type ProxyConnectError struct {
	Protocol    string
	AuthScheme  string
	Proxy       string
	Destination string
	Err         error
}

func (e *ProxyConnectError) Error() string {
	msg := fmt.Sprintf("%s, %s, %s => %s", e.Protocol, e.AuthScheme, e.Proxy, e.Destination)
	if e.Err != nil {
		msg += ", " + e.Err.Error()
	}
	return msg
}

func (e *ProxyConnectError) Unwrap() error { return e.Err }

// ConnectionEvent is fired down the pipeline once a tunnel is established.
type ConnectionEvent struct {
	Protocol    string
	AuthScheme  string
	Proxy       string
	Destination string
}

func (e ConnectionEvent) String() string {
	return fmt.Sprintf("ProxyConnectionEvent(%s, %s, %s => %s)", e.Protocol, e.AuthScheme, e.Proxy, e.Destination)
}
