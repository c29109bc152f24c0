package dialer

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/die-net/socksx/internal/testutil"
)

// handleSOCKS4Connect serves one SOCKS4/4a CONNECT and relays to the
// requested destination.
func handleSOCKS4Connect(ctx context.Context, c net.Conn, wantUser string) error {
	br := bufio.NewReader(c)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return err
	}
	if hdr[0] != 0x04 || hdr[1] != 0x01 {
		return errors.New("not a socks4 connect")
	}
	port := binary.BigEndian.Uint16(hdr[2:4])
	host := net.IP(hdr[4:8]).String()

	user, err := br.ReadString(0)
	if err != nil {
		return err
	}
	if hdr[4] == 0 && hdr[5] == 0 && hdr[6] == 0 && hdr[7] != 0 {
		if host, err = br.ReadString(0); err != nil {
			return err
		}
		host = host[:len(host)-1]
	}

	reply := []byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}
	if user[:len(user)-1] != wantUser {
		reply[1] = 0x5d
		_, err := c.Write(reply)
		return err
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		reply[1] = 0x5b
		_, _ = c.Write(reply)
		return nil
	}
	defer dst.Close()

	if _, err := c.Write(reply); err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(dst, br)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)

	return nil
}

func TestSOCKS4ProxyDialerDialSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = handleSOCKS4Connect(ctx, c, "bob")
	})

	f := NewSOCKS4ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "bob")

	conn, err := f.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello"))

	waitUp()
}

func TestSOCKS4aProxyDialerResolvesRemotely(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()
	_, port, _ := net.SplitHostPort(echoLn.Addr().String())

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = handleSOCKS4Connect(ctx, c, "")
	})

	f := NewSOCKS4ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "")

	conn, err := f.DialContext(ctx, "tcp", net.JoinHostPort("localhost", port))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello"))

	waitUp()
}

func TestSOCKS4ProxyDialerRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = handleSOCKS4Connect(ctx, c, "alice")
	})

	f := NewSOCKS4ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "bob")

	_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
	if !errors.Is(err, ErrConnectRejected) {
		t.Fatalf("got %v, want ErrConnectRejected", err)
	}
	var pce *ProxyConnectError
	if !errors.As(err, &pce) || pce.Protocol != "socks4" || pce.Destination != "127.0.0.1:1" {
		t.Fatalf("got %#v", pce)
	}

	waitUp()
}

func TestSOCKSProxyDialerUnsupportedNetwork(t *testing.T) {
	f := NewSOCKS5ProxyDialer(Config{}, "127.0.0.1:1", "", "")
	if _, err := f.DialContext(context.Background(), "udp", "127.0.0.1:53"); err == nil {
		t.Fatal("expected error")
	}
}

