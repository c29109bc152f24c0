package dialer

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
)

type Config struct {
	// DialTimeout bounds the TCP connect to the proxy or destination.
	DialTimeout time.Duration
	// NegotiationTimeout bounds the proxy handshake once connected.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Loops runs the outbound channels. Nil uses a shared group.
	Loops *conn.EventLoopGroup

	Logger *zap.Logger
}

var defaultLoops = sync.OnceValue(func() *conn.EventLoopGroup {
	return conn.NewEventLoopGroup(0)
})

func (c Config) loops() *conn.EventLoopGroup {
	if c.Loops != nil {
		return c.Loops
	}
	return defaultLoops()
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c Config) channelConfig() conn.ChannelConfig {
	return conn.ChannelConfig{
		ConnectTimeout: c.DialTimeout,
		KeepAlive:      c.KeepAlive,
		Logger:         c.logger(),
	}
}
