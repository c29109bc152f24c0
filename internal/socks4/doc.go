// Package socks4 implements the SOCKS4 and SOCKS4a wire format: the command
// request sent by a client, the command response sent by a server, stateless
// encoders for both directions and incremental decoders for both directions.
//
// SOCKS4a destinations carry a domain name after the user id and mark the
// destination IP with 0.0.0.x (x != 0).
package socks4
