package conn

import (
	"context"
	"fmt"
	"net"
)

// KeepAliveOff disables TCP keep-alive. The zero KeepAliveConfig means
// keep-alive with the system's probe settings.
var KeepAliveOff = net.KeepAliveConfig{Idle: -1, Interval: -1, Count: -1}

// keepAlive resolves the zero config to an enabled one.
func keepAlive(ka net.KeepAliveConfig) net.KeepAliveConfig {
	if ka == (net.KeepAliveConfig{}) {
		ka.Enable = true
	}
	return ka
}

// SetKeepAlive applies ka to nc when it is a TCP connection.
func SetKeepAlive(nc net.Conn, ka net.KeepAliveConfig) {
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(keepAlive(ka))
	}
}

// ListenTCP opens the listening socket for accepted channels. Every
// accepted TCP connection gets ka. On unix the socket is bound with
// SO_REUSEADDR.
func ListenTCP(network, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}

	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	return &listener{Listener: ln, ka: keepAlive(ka)}, nil
}

type listener struct {
	net.Listener
	ka net.KeepAliveConfig
}

func (l *listener) Accept() (net.Conn, error) {
	nc, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	SetKeepAlive(nc, l.ka)
	return nc, nil
}
