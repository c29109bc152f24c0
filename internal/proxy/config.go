package proxy

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/dialer"
)

// DefaultDialTimeout bounds the outbound connect made for each CONNECT
// request.
const DefaultDialTimeout = 10 * time.Second

type Config struct {
	// Dialer routes outbound connections. A dialer.HandlerFactory tunnels
	// through its proxy on the event loop; any other Dialer is used as the
	// channel's dial function. Nil dials directly.
	Dialer dialer.Dialer

	// Credentials, when set, requires SOCKS5 password authentication and
	// turns away SOCKS4 clients.
	Credentials Credentials

	DialTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Loops runs the accepted and outbound channels. Nil uses
	// conn.NewEventLoopGroup(0), owned by the Server.
	Loops *conn.EventLoopGroup

	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return DefaultDialTimeout
}

// outboundConfig is the channel configuration of connections to
// destinations.
func (c *Config) outboundConfig() conn.ChannelConfig {
	cc := conn.ChannelConfig{
		ConnectTimeout: c.dialTimeout(),
		KeepAlive:      c.KeepAlive,
		Logger:         c.logger(),
	}
	if _, ok := c.Dialer.(dialer.HandlerFactory); !ok && c.Dialer != nil {
		cc.Dial = c.Dialer.DialContext
	}
	return cc
}

// proxyHandler returns a handshake handler for the upstream proxy, or nil
// when connections go straight to the destination.
func (c *Config) proxyHandler() *dialer.ProxyHandler {
	if f, ok := c.Dialer.(dialer.HandlerFactory); ok {
		return f.NewProxyHandler()
	}
	return nil
}
