// Package proxy implements the socksx listener side.
//
// A Server puts every accepted connection on an event loop with two
// stages: Unification, which picks the SOCKS4a or SOCKS5 codec from the
// first byte, and ServerHandler, which negotiates authentication and
// dispatches CONNECT requests. The connect handler opens the outbound
// connection, optionally through an upstream proxy, and links both sides
// with a Relay.
package proxy
