package socks4

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/die-net/socksx/internal/socks"
)

// CommandRequest is sent by the client to open a connection.
type CommandRequest struct {
	typ     CommandType
	dstAddr string
	dstPort uint16
	userID  string
}

// NewCommandRequest validates and builds a request. dstAddr is either a
// dotted-quad IPv4 address or a host name; host names are sent using the
// SOCKS4a extension.
func NewCommandRequest(typ CommandType, dstAddr string, dstPort int, userID string) (*CommandRequest, error) {
	if dstPort <= 0 || dstPort > 65535 {
		return nil, fmt.Errorf("dstPort: %d (expected: 1~65535)", dstPort)
	}
	if ip, err := netip.ParseAddr(dstAddr); err == nil && !ip.Is4() {
		return nil, fmt.Errorf("dstAddr: %s (expected: an IPv4 address or a host name)", dstAddr)
	}
	addr, err := socks.NormalizeHost(dstAddr)
	if err != nil {
		return nil, fmt.Errorf("dstAddr: %w", err)
	}
	if err := checkString("dstAddr", addr); err != nil {
		return nil, err
	}
	if err := checkString("userId", userID); err != nil {
		return nil, err
	}
	return newCommandRequest(typ, addr, uint16(dstPort), userID), nil
}

func newCommandRequest(typ CommandType, dstAddr string, dstPort uint16, userID string) *CommandRequest {
	return &CommandRequest{typ: typ, dstAddr: dstAddr, dstPort: dstPort, userID: userID}
}

func checkString(field, s string) error {
	if len(s) > socks.MaxFieldLength {
		return fmt.Errorf("%s: %d bytes (expected: at most %d)", field, len(s), socks.MaxFieldLength)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%s: contains NUL", field)
	}
	return nil
}

func (*CommandRequest) Version() socks.Version { return socks.Version4 }

func (r *CommandRequest) Type() CommandType { return r.typ }
func (r *CommandRequest) DstAddr() string   { return r.dstAddr }
func (r *CommandRequest) DstPort() uint16   { return r.dstPort }
func (r *CommandRequest) UserID() string    { return r.userID }

func (r *CommandRequest) String() string {
	return fmt.Sprintf("Socks4CommandRequest(type: %s, dstAddr: %s, dstPort: %d, userId: %s)",
		r.typ, r.dstAddr, r.dstPort, r.userID)
}

// CommandResponse is the server's reply to a CommandRequest.
type CommandResponse struct {
	status  Status
	dstAddr string
	dstPort uint16
}

// NewCommandResponse builds a reply. An empty dstAddr is sent as 0.0.0.0.
func NewCommandResponse(status Status, dstAddr string, dstPort int) (*CommandResponse, error) {
	if dstPort < 0 || dstPort > 65535 {
		return nil, fmt.Errorf("dstPort: %d (expected: 0~65535)", dstPort)
	}
	if dstAddr != "" {
		ip, err := netip.ParseAddr(dstAddr)
		if err != nil || !ip.Is4() {
			return nil, fmt.Errorf("dstAddr: %s (expected: an IPv4 address)", dstAddr)
		}
	}
	return &CommandResponse{status: status, dstAddr: dstAddr, dstPort: uint16(dstPort)}, nil
}

// NewStatusResponse builds a reply carrying only a status.
func NewStatusResponse(status Status) *CommandResponse {
	return &CommandResponse{status: status}
}

func (*CommandResponse) Version() socks.Version { return socks.Version4 }

func (r *CommandResponse) Status() Status  { return r.status }
func (r *CommandResponse) DstAddr() string { return r.dstAddr }
func (r *CommandResponse) DstPort() uint16 { return r.dstPort }

func (r *CommandResponse) String() string {
	return fmt.Sprintf("Socks4CommandResponse(status: %s, dstAddr: %s, dstPort: %d)",
		r.status, r.dstAddr, r.dstPort)
}
