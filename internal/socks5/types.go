package socks5

import "github.com/die-net/socksx/internal/socks"

// AddressType is the ATYP field.
type AddressType byte

const (
	IPv4   AddressType = 0x01
	Domain AddressType = 0x03
	IPv6   AddressType = 0x04
)

func (t AddressType) String() string {
	switch t {
	case IPv4:
		return socks.EnumString("IPv4", byte(t))
	case Domain:
		return socks.EnumString("DOMAIN", byte(t))
	case IPv6:
		return socks.EnumString("IPv6", byte(t))
	}
	return socks.EnumString("", byte(t))
}

// AuthMethod is an authentication method offered by a client or chosen by
// a server.
type AuthMethod byte

const (
	NoAuth     AuthMethod = 0x00
	GSSAPI     AuthMethod = 0x01
	Password   AuthMethod = 0x02
	Unaccepted AuthMethod = 0xff
)

func (m AuthMethod) String() string {
	switch m {
	case NoAuth:
		return socks.EnumString("NO_AUTH", byte(m))
	case GSSAPI:
		return socks.EnumString("GSSAPI", byte(m))
	case Password:
		return socks.EnumString("PASSWORD", byte(m))
	case Unaccepted:
		return socks.EnumString("UNACCEPTED", byte(m))
	}
	return socks.EnumString("", byte(m))
}

// CommandType is the CMD field of a request.
type CommandType byte

const (
	Connect      CommandType = 0x01
	Bind         CommandType = 0x02
	UDPAssociate CommandType = 0x03
)

func (t CommandType) String() string {
	switch t {
	case Connect:
		return socks.EnumString("CONNECT", byte(t))
	case Bind:
		return socks.EnumString("BIND", byte(t))
	case UDPAssociate:
		return socks.EnumString("UDP_ASSOCIATE", byte(t))
	}
	return socks.EnumString("", byte(t))
}

// CommandStatus is the REP field of a reply.
type CommandStatus byte

const (
	StatusSuccess            CommandStatus = 0x00
	StatusFailure            CommandStatus = 0x01
	StatusForbidden          CommandStatus = 0x02
	StatusNetworkUnreachable CommandStatus = 0x03
	StatusHostUnreachable    CommandStatus = 0x04
	StatusConnectionRefused  CommandStatus = 0x05
	StatusTTLExpired         CommandStatus = 0x06
	StatusCommandUnsupported CommandStatus = 0x07
	StatusAddressUnsupported CommandStatus = 0x08
)

var commandStatusNames = [...]string{
	"SUCCESS",
	"FAILURE",
	"FORBIDDEN",
	"NETWORK_UNREACHABLE",
	"HOST_UNREACHABLE",
	"CONNECTION_REFUSED",
	"TTL_EXPIRED",
	"COMMAND_UNSUPPORTED",
	"ADDRESS_UNSUPPORTED",
}

func (s CommandStatus) IsSuccess() bool { return s == StatusSuccess }

func (s CommandStatus) String() string {
	if int(s) < len(commandStatusNames) {
		return socks.EnumString(commandStatusNames[s], byte(s))
	}
	return socks.EnumString("", byte(s))
}

// PasswordAuthStatus is the STATUS field of a username/password reply. Any
// value other than success means failure.
type PasswordAuthStatus byte

const (
	AuthSuccess PasswordAuthStatus = 0x00
	AuthFailure PasswordAuthStatus = 0xff
)

func (s PasswordAuthStatus) IsSuccess() bool { return s == AuthSuccess }

func (s PasswordAuthStatus) String() string {
	switch s {
	case AuthSuccess:
		return socks.EnumString("SUCCESS", byte(s))
	case AuthFailure:
		return socks.EnumString("FAILURE", byte(s))
	}
	return socks.EnumString("", byte(s))
}
