package netmodel

import "net/netip"

// PortKey is a (port, protocol) pair. spec.md §9 explicitly mandates a
// struct key here, rejecting the string-composite key one revision of
// original_source used.
type PortKey struct {
	Port     uint16
	Protocol TransportProtocol
}

// SocketKey identifies a remote socket a flow terminates at, used for
// NetStatStore.sockets.
type SocketKey struct {
	Addr     netip.AddrPort
	Protocol TransportProtocol
}

// ConnectionKey is the stable 5-tuple-minus-version handle for a flow.
// Only the socket reconciler creates these (spec.md §9's Open Question
// resolution); the packet path may only attach inferred state to an
// existing key.
type ConnectionKey struct {
	Local, Remote netip.AddrPort
	Protocol      TransportProtocol
}
