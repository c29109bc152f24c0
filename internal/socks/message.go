package socks

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// MaxFieldLength is the longest variable-length field either protocol can
// carry: user ids, domain names, usernames and passwords.
const MaxFieldLength = 255

// ErrUnsupportedMessage is returned by an encoder handed a message it does
// not know how to write. It indicates a programming error.
var ErrUnsupportedMessage = errors.New("unsupported message type")

// Message is implemented by every SOCKS4 and SOCKS5 message.
type Message interface {
	fmt.Stringer
	Version() Version
}

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// NormalizeHost converts an internationalized host name to its ASCII form.
// Pure ASCII input is returned unchanged so that names decoded from the wire
// round-trip byte for byte.
func NormalizeHost(host string) (string, error) {
	if isASCII(host) {
		return host, nil
	}
	if !utf8.ValidString(host) {
		return "", fmt.Errorf("host %q: invalid UTF-8", host)
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("host %q: %w", host, err)
	}
	return ascii, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
