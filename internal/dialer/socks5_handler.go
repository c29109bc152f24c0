package dialer

import (
	"fmt"

	"github.com/die-net/socksx/internal/conn"
	"github.com/die-net/socksx/internal/socks"
	"github.com/die-net/socksx/internal/socks5"
)

// NewSocks5Handler returns a ProxyHandler that tunnels through the SOCKS5
// proxy at proxyAddress. Password authentication is offered when username
// or password is non-empty.
func NewSocks5Handler(proxyAddress, username, password string) *ProxyHandler {
	return newProxyHandler(proxyAddress, &socks5Protocol{username: username, password: password})
}

type socks5Protocol struct {
	username    string
	password    string
	encoderName string
	decoderName string
}

func (*socks5Protocol) protocol() string { return socks.Version5.String() }

func (s *socks5Protocol) hasCredentials() bool {
	return s.username != "" || s.password != ""
}

func (s *socks5Protocol) authScheme() string {
	if s.hasCredentials() {
		return "password"
	}
	return "none"
}

func (s *socks5Protocol) addCodec(ctx *conn.Context) error {
	p := ctx.Pipeline()
	s.encoderName = ctx.Name() + ".encoder"
	s.decoderName = ctx.Name() + ".decoder"
	if err := p.AddBefore(ctx.Name(), s.encoderName, conn.NewEncoderHandler(socks5.DefaultClientEncoder)); err != nil {
		return err
	}
	return p.AddBefore(ctx.Name(), s.decoderName, conn.NewDecoderHandler(socks5.NewInitialResponseDecoder()))
}

func (s *socks5Protocol) removeEncoder(ctx *conn.Context) error {
	_, err := ctx.Pipeline().Remove(s.encoderName)
	return err
}

func (s *socks5Protocol) removeDecoder(ctx *conn.Context) error {
	_, err := ctx.Pipeline().Remove(s.decoderName)
	return err
}

func (s *socks5Protocol) initialMessage(string) (any, error) {
	if s.hasCredentials() {
		return socks5.NewInitialRequest(socks5.NoAuth, socks5.Password)
	}
	return socks5.NewInitialRequest(socks5.NoAuth)
}

func (s *socks5Protocol) handleResponse(h *ProxyHandler, ctx *conn.Context, msg socks.Message) (bool, error) {
	switch m := msg.(type) {
	case *socks5.InitialResponse:
		switch {
		case m.AuthMethod() == socks5.Password && s.hasCredentials():
			req, err := socks5.NewPasswordAuthRequest(s.username, s.password)
			if err != nil {
				return false, err
			}
			h.sendToProxy(ctx, req)
			return false, s.replaceDecoder(ctx, socks5.NewPasswordAuthResponseDecoder())
		case m.AuthMethod() == socks5.NoAuth:
			return false, s.sendConnect(h, ctx)
		default:
			return false, fmt.Errorf("unexpected authMethod: %s", m.AuthMethod())
		}

	case *socks5.PasswordAuthResponse:
		if !m.Status().IsSuccess() {
			return false, fmt.Errorf("authStatus: %s: %w", m.Status(), ErrAuthRejected)
		}
		return false, s.sendConnect(h, ctx)

	case *socks5.CommandResponse:
		if !m.Status().IsSuccess() {
			return false, fmt.Errorf("status: %s: %w", m.Status(), ErrConnectRejected)
		}
		return true, nil
	}
	return false, fmt.Errorf("unexpected message: %s", msg)
}

func (s *socks5Protocol) sendConnect(h *ProxyHandler, ctx *conn.Context) error {
	host, port, err := splitHostPort(h.destination)
	if err != nil {
		return err
	}
	req, err := socks5.NewCommandRequest(socks5.Connect, socks5.AddressTypeOf(host), host, port)
	if err != nil {
		return err
	}
	h.sendToProxy(ctx, req)
	return s.replaceDecoder(ctx, socks5.NewCommandResponseDecoder())
}

// replaceDecoder installs the decoder for the next response. Bytes the old
// decoder still holds move to the new one.
func (s *socks5Protocol) replaceDecoder(ctx *conn.Context, d conn.Decoder) error {
	_, err := ctx.Pipeline().Replace(s.decoderName, s.decoderName, conn.NewDecoderHandler(d))
	return err
}
