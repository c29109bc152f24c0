// Package dialer provides outbound dialing implementations used by socksx.
//
// ProxyHandler is the client side of the SOCKS4a and SOCKS5 handshakes. It
// runs in the pipeline of an outbound channel, holds application writes
// until the proxy has opened the tunnel and then gets out of the way.
// Dialers wrap it behind a DialContext method for callers that want a
// plain net.Conn, and New selects one from an upstream URL.
package dialer
