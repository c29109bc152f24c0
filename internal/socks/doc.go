// Package socks holds the pieces shared by the SOCKS4 and SOCKS5 codecs: the
// protocol version byte, the decode outcome attached to decoded messages,
// the decode error type, and a short-read aware cursor used by the
// incremental decoders.
package socks
