package proxy

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
)

// Server accepts SOCKS4a and SOCKS5 clients on one port.
type Server struct {
	ctx     context.Context
	cfg     Config
	loops   *conn.EventLoopGroup
	ownLoop bool
}

// NewServer constructs a Server. When ctx is done, Serve stops accepting.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{ctx: ctx, cfg: cfg, loops: cfg.Loops}
	if s.loops == nil {
		s.loops = conn.NewEventLoopGroup(0)
		s.ownLoop = true
	}
	return s
}

// Serve accepts connections on ln until it is closed or the Server's
// context is done. Each connection gets its own pipeline; a failing
// connection never stops the loop.
func (s *Server) Serve(ln net.Listener) error {
	stop := context.AfterFunc(s.ctx, func() { _ = ln.Close() })
	defer stop()
	if s.ownLoop {
		defer s.loops.Close()
	}

	logger := s.cfg.logger()
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		ch := conn.NewChannel(s.loops.Next(), c, conn.ChannelConfig{
			KeepAlive: s.cfg.KeepAlive,
			Logger:    logger,
		})
		if ce := logger.Check(zap.DebugLevel, "accepted"); ce != nil {
			ce.Write(zap.Stringer("channel", ch.ID()), zap.Stringer("remote", c.RemoteAddr()))
		}
		ch.Register(func(p *conn.Pipeline) error {
			if err := p.AddLast("unification", NewUnification()); err != nil {
				return err
			}
			return p.AddLast("socks", NewServerHandler(&s.cfg))
		})
	}
}
