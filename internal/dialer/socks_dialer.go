package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/socksx/internal/conn"
)

// SOCKSProxyDialer dials through a SOCKS4a or SOCKS5 proxy. Each
// connection runs on an event loop with a ProxyHandler performing the
// handshake and a conn.NetConn handing the tunnel to the caller.
type SOCKSProxyDialer struct {
	cfg        Config
	proxyAddr  string
	newHandler func() *ProxyHandler
}

func NewSOCKS4ProxyDialer(cfg Config, proxyAddr, userID string) *SOCKSProxyDialer {
	return &SOCKSProxyDialer{
		cfg:        cfg,
		proxyAddr:  proxyAddr,
		newHandler: func() *ProxyHandler { return NewSocks4Handler(proxyAddr, userID) },
	}
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, user, pass string) *SOCKSProxyDialer {
	return &SOCKSProxyDialer{
		cfg:        cfg,
		proxyAddr:  proxyAddr,
		newHandler: func() *ProxyHandler { return NewSocks5Handler(proxyAddr, user, pass) },
	}
}

// NewProxyHandler returns a fresh handshake handler for one connection.
func (f *SOCKSProxyDialer) NewProxyHandler() *ProxyHandler {
	h := f.newHandler()
	if f.cfg.NegotiationTimeout > 0 {
		h.SetConnectTimeout(f.cfg.NegotiationTimeout)
	}
	return h
}

func (f *SOCKSProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	h := f.NewProxyHandler()

	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("%s proxy dial %s %s: unsupported network", h.Protocol(), network, address)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s proxy dial %s %s: %w", h.Protocol(), network, address, err)
	}

	ch := conn.NewChannel(f.cfg.loops().Next(), nil, f.cfg.channelConfig())
	ch.SetAutoRead(false)
	nc := conn.NewNetConn(ch)

	err := ch.Register(func(p *conn.Pipeline) error {
		if err := p.AddLast("proxy", h); err != nil {
			return err
		}
		return p.AddLast("netconn", nc.Handler())
	}).Wait(ctx)
	if err == nil {
		ch.Connect(address)
		err = h.ConnectFuture().Wait(ctx)
	}
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s proxy dial %s %s: %w", h.Protocol(), network, address, err)
	}
	return nc, nil
}
