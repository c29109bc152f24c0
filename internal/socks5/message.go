package socks5

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/die-net/socksx/internal/socks"
)

// Message is implemented by every SOCKS5 message, including the
// username/password subnegotiation messages.
type Message interface {
	socks.Message
	socks5()
}

type message struct{}

func (message) Version() socks.Version { return socks.Version5 }
func (message) socks5()                {}

// InitialRequest offers the client's authentication methods.
type InitialRequest struct {
	message
	methods []AuthMethod
}

func NewInitialRequest(methods ...AuthMethod) (*InitialRequest, error) {
	if len(methods) == 0 {
		return nil, errors.New("authMethods: empty (expected: at least one)")
	}
	if len(methods) > 255 {
		return nil, fmt.Errorf("authMethods: %d (expected: at most 255)", len(methods))
	}
	return &InitialRequest{methods: slices.Clone(methods)}, nil
}

// AuthMethods returns the offered methods in order.
func (r *InitialRequest) AuthMethods() []AuthMethod { return slices.Clone(r.methods) }

// Offers reports whether m is among the offered methods.
func (r *InitialRequest) Offers(m AuthMethod) bool { return slices.Contains(r.methods, m) }

func (r *InitialRequest) String() string {
	return fmt.Sprintf("Socks5InitialRequest(authMethods: %v)", r.methods)
}

// InitialResponse carries the method chosen by the server.
type InitialResponse struct {
	message
	method AuthMethod
}

func NewInitialResponse(method AuthMethod) *InitialResponse {
	return &InitialResponse{method: method}
}

func (r *InitialResponse) AuthMethod() AuthMethod { return r.method }

func (r *InitialResponse) String() string {
	return fmt.Sprintf("Socks5InitialResponse(authMethod: %s)", r.method)
}

// PasswordAuthRequest carries RFC 1929 credentials.
type PasswordAuthRequest struct {
	message
	username string
	password string
}

func NewPasswordAuthRequest(username, password string) (*PasswordAuthRequest, error) {
	if len(username) > socks.MaxFieldLength {
		return nil, fmt.Errorf("username: %d bytes (expected: at most %d)", len(username), socks.MaxFieldLength)
	}
	if len(password) > socks.MaxFieldLength {
		return nil, fmt.Errorf("password: %d bytes (expected: at most %d)", len(password), socks.MaxFieldLength)
	}
	return &PasswordAuthRequest{username: username, password: password}, nil
}

func (r *PasswordAuthRequest) Username() string { return r.username }
func (r *PasswordAuthRequest) Password() string { return r.password }

func (r *PasswordAuthRequest) String() string {
	return fmt.Sprintf("Socks5PasswordAuthRequest(username: %s, password: ****)", r.username)
}

// PasswordAuthResponse is the server's verdict on a PasswordAuthRequest.
type PasswordAuthResponse struct {
	message
	status PasswordAuthStatus
}

func NewPasswordAuthResponse(status PasswordAuthStatus) *PasswordAuthResponse {
	return &PasswordAuthResponse{status: status}
}

func (r *PasswordAuthResponse) Status() PasswordAuthStatus { return r.status }

func (r *PasswordAuthResponse) String() string {
	return fmt.Sprintf("Socks5PasswordAuthResponse(status: %s)", r.status)
}

// CommandRequest asks the server to perform a command on a destination.
type CommandRequest struct {
	message
	typ      CommandType
	addrType AddressType
	dstAddr  string
	dstPort  uint16
}

func NewCommandRequest(typ CommandType, addrType AddressType, dstAddr string, dstPort int) (*CommandRequest, error) {
	if dstAddr == "" {
		return nil, errors.New("dstAddr: empty")
	}
	addr, err := checkAddress("dstAddr", addrType, dstAddr)
	if err != nil {
		return nil, err
	}
	if dstPort < 0 || dstPort > 65535 {
		return nil, fmt.Errorf("dstPort: %d (expected: 0~65535)", dstPort)
	}
	return &CommandRequest{typ: typ, addrType: addrType, dstAddr: addr, dstPort: uint16(dstPort)}, nil
}

func (r *CommandRequest) Type() CommandType        { return r.typ }
func (r *CommandRequest) DstAddrType() AddressType { return r.addrType }
func (r *CommandRequest) DstAddr() string          { return r.dstAddr }
func (r *CommandRequest) DstPort() uint16          { return r.dstPort }

func (r *CommandRequest) String() string {
	return fmt.Sprintf("Socks5CommandRequest(type: %s, dstAddrType: %s, dstAddr: %s, dstPort: %d)",
		r.typ, r.addrType, r.dstAddr, r.dstPort)
}

// CommandResponse is the server's reply to a CommandRequest. The bound
// address is optional; an empty one is sent as all zeroes.
type CommandResponse struct {
	message
	status   CommandStatus
	addrType AddressType
	bndAddr  string
	bndPort  uint16
}

func NewCommandResponse(status CommandStatus, addrType AddressType, bndAddr string, bndPort int) (*CommandResponse, error) {
	addr := bndAddr
	if addr != "" {
		var err error
		if addr, err = checkAddress("bndAddr", addrType, bndAddr); err != nil {
			return nil, err
		}
	} else if !knownAddressType(addrType) {
		return nil, fmt.Errorf("bndAddrType: %s (expected: IPv4, DOMAIN or IPv6)", addrType)
	}
	if bndPort < 0 || bndPort > 65535 {
		return nil, fmt.Errorf("bndPort: %d (expected: 0~65535)", bndPort)
	}
	return &CommandResponse{status: status, addrType: addrType, bndAddr: addr, bndPort: uint16(bndPort)}, nil
}

// NewStatusResponse builds a reply with no bound address.
func NewStatusResponse(status CommandStatus, addrType AddressType) (*CommandResponse, error) {
	return NewCommandResponse(status, addrType, "", 0)
}

func (r *CommandResponse) Status() CommandStatus    { return r.status }
func (r *CommandResponse) BndAddrType() AddressType { return r.addrType }
func (r *CommandResponse) BndAddr() string          { return r.bndAddr }
func (r *CommandResponse) BndPort() uint16          { return r.bndPort }

func (r *CommandResponse) String() string {
	return fmt.Sprintf("Socks5CommandResponse(status: %s, bndAddrType: %s, bndAddr: %s, bndPort: %d)",
		r.status, r.addrType, r.bndAddr, r.bndPort)
}

func knownAddressType(t AddressType) bool {
	return t == IPv4 || t == Domain || t == IPv6
}

func checkAddress(field string, t AddressType, addr string) (string, error) {
	switch t {
	case IPv4:
		if ip, err := netip.ParseAddr(addr); err != nil || !ip.Is4() {
			return "", fmt.Errorf("%s: %s (expected: a valid IPv4 address)", field, addr)
		}
		return addr, nil
	case IPv6:
		if ip, err := netip.ParseAddr(addr); err != nil || !ip.Is6() || ip.Zone() != "" {
			return "", fmt.Errorf("%s: %s (expected: a valid IPv6 address)", field, addr)
		}
		return addr, nil
	case Domain:
		host, err := socks.NormalizeHost(addr)
		if err != nil {
			return "", fmt.Errorf("%s: %w", field, err)
		}
		if len(host) > socks.MaxFieldLength {
			return "", fmt.Errorf("%s: %d bytes (expected: at most %d)", field, len(host), socks.MaxFieldLength)
		}
		if strings.IndexByte(host, 0) >= 0 {
			return "", fmt.Errorf("%s: contains NUL", field)
		}
		return host, nil
	}
	return "", fmt.Errorf("%sType: %s (expected: IPv4, DOMAIN or IPv6)", field, t)
}

// AddressTypeOf picks the address type for a host: IPv4 and IPv6 literals
// map to their family and anything else is sent as a domain name.
func AddressTypeOf(host string) AddressType {
	ip, err := netip.ParseAddr(host)
	switch {
	case err != nil:
		return Domain
	case ip.Is4():
		return IPv4
	default:
		return IPv6
	}
}
