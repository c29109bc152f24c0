package dialer

import (
	"fmt"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/socks"
	"github.com/die-net/socksx/internal/socks4"
)

// NewSocks4Handler returns a ProxyHandler that tunnels through the SOCKS4a
// proxy at proxyAddress, identifying as userID.
func NewSocks4Handler(proxyAddress, userID string) *ProxyHandler {
	return newProxyHandler(proxyAddress, &socks4Protocol{userID: userID})
}

type socks4Protocol struct {
	userID      string
	encoderName string
	decoderName string
}

func (*socks4Protocol) protocol() string { return socks.Version4.String() }

func (s *socks4Protocol) authScheme() string {
	if s.userID != "" {
		return "username"
	}
	return "none"
}

func (s *socks4Protocol) addCodec(ctx *conn.Context) error {
	p := ctx.Pipeline()
	s.encoderName = ctx.Name() + ".encoder"
	s.decoderName = ctx.Name() + ".decoder"
	if err := p.AddBefore(ctx.Name(), s.encoderName, conn.NewEncoderHandler(socks4.ClientEncoder{})); err != nil {
		return err
	}
	return p.AddBefore(ctx.Name(), s.decoderName, conn.NewDecoderHandler(socks4.NewClientDecoder()))
}

func (s *socks4Protocol) removeEncoder(ctx *conn.Context) error {
	_, err := ctx.Pipeline().Remove(s.encoderName)
	return err
}

func (s *socks4Protocol) removeDecoder(ctx *conn.Context) error {
	_, err := ctx.Pipeline().Remove(s.decoderName)
	return err
}

func (s *socks4Protocol) initialMessage(destination string) (any, error) {
	host, port, err := splitHostPort(destination)
	if err != nil {
		return nil, err
	}
	return socks4.NewCommandRequest(socks4.Connect, host, port, s.userID)
}

func (*socks4Protocol) handleResponse(_ *ProxyHandler, _ *conn.Context, msg socks.Message) (bool, error) {
	resp, ok := msg.(*socks4.CommandResponse)
	if !ok {
		return false, fmt.Errorf("unexpected message: %s", msg)
	}
	if !resp.Status().IsSuccess() {
		return false, fmt.Errorf("status: %s: %w", resp.Status(), ErrConnectRejected)
	}
	return true, nil
}
