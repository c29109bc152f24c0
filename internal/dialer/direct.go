package dialer

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/die-net/socksx/internal/conn"
)

type directDialer struct {
	cfg Config
}

func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dd := net.Dialer{Timeout: f.cfg.DialTimeout}

	nc, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	conn.SetKeepAlive(nc, f.cfg.KeepAlive)

	f.cfg.logger().Debug("direct dial", zap.String("address", address))
	return nc, nil
}
