// Package socks5 implements the SOCKS5 wire format (RFC 1928) and the
// username/password subnegotiation (RFC 1929).
//
// Every protocol step has an immutable message type, a stateless encoder
// for each side of the connection and an incremental decoder. Decoders are
// single-shot: after producing their message they hand back any further
// bytes untouched so the handler that replaces them does not lose data.
package socks5
