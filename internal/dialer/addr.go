package dialer

import (
	"fmt"
	"net"
	"strconv"
)

func splitHostPort(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("destination %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("destination %q: bad port", address)
	}
	return host, int(port), nil
}
