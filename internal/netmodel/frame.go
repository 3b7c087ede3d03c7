package netmodel

import "net/netip"

// Frame is the parsed packet handed up by a FrameSource (spec.md §6),
// grounded on original_source's net/packet.rs::PacketFrame — Option
// layers become pointer fields, absent when that layer wasn't present
// or couldn't be parsed.
type Frame struct {
	IfIndex   uint32
	IfName    string
	Datalink  *DatalinkLayer
	IP        *IPLayer
	Transport *TransportLayer
	PacketLen uint64
	Timestamp string // RFC3339
}

// DatalinkLayer carries Ethernet/ARP addressing.
type DatalinkLayer struct {
	SrcMAC, DstMAC string
	IsARP          bool
}

// IPLayer carries exactly one of IPv4 or IPv6 source/destination.
type IPLayer struct {
	Src, Dst netip.Addr
	Protocol Protocol // best-effort next-header/protocol tag for traffic breakdown
}

// TransportLayer carries TCP or UDP port/flag information.
type TransportLayer struct {
	SrcPort, DstPort uint16
	Proto            TransportProtocol
	HasTCP           bool
	Flags            TcpFlags
}

// ClassifiedFrame is the classifier's output: a frame attributed to a
// direction with local/remote roles resolved (spec.md §4.1).
type ClassifiedFrame struct {
	Direction            Direction
	LocalIP, RemoteIP     netip.Addr
	LocalPort, RemotePort uint16
	MAC                   string
	Protocol              *TransportProtocol
	LinkProtocol          Protocol
	TCPFlags              *TcpFlags
	PacketLen             uint64
	Timestamp             string
}
