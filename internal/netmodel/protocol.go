// Package netmodel holds the value types shared by every layer of the
// telemetry core: protocol tags, traffic counters, keys, and the frame
// and socket shapes produced by the external collaborators.
package netmodel

// Protocol tags the layer a packet was classified at. Unlike
// TransportProtocol (TCP/UDP only, used for keys), Protocol also covers
// link-layer and control traffic so a host's per-protocol breakdown can
// include ARP/NDP/ICMP alongside TCP/UDP.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolARP
	ProtocolNDP
	ProtocolICMP
	ProtocolTCP
	ProtocolUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolARP:
		return "ARP"
	case ProtocolNDP:
		return "NDP"
	case ProtocolICMP:
		return "ICMP"
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return "UNKNOWN"
	}
}

// TransportProtocol is the narrower TCP/UDP tag used in PortKey and
// ConnectionKey, matching spec.md's AddressFamily/TransportProtocol
// enumerations.
type TransportProtocol uint8

const (
	TransportTCP TransportProtocol = iota
	TransportUDP
)

func (t TransportProtocol) String() string {
	if t == TransportUDP {
		return "UDP"
	}
	return "TCP"
}

// AddressFamily distinguishes IPv4 from IPv6 for socket enumeration and
// IPDB lookups.
type AddressFamily uint8

const (
	FamilyIPv4 AddressFamily = iota
	FamilyIPv6
)

func (f AddressFamily) String() string {
	if f == FamilyIPv6 {
		return "IPv6"
	}
	return "IPv4"
}

// Direction is ingress/egress relative to a capturing interface's local
// address set.
type Direction uint8

const (
	DirectionEgress Direction = iota
	DirectionIngress
)

func (d Direction) String() string {
	if d == DirectionIngress {
		return "ingress"
	}
	return "egress"
}

// TcpState is the 12-state TCP FSM plus Unknown, mirroring
// original_source's SocketStatus and netstat2::TcpState.
type TcpState uint8

const (
	TcpClosed TcpState = iota
	TcpListen
	TcpSynSent
	TcpSynReceived
	TcpEstablished
	TcpFinWait1
	TcpFinWait2
	TcpCloseWait
	TcpClosing
	TcpLastAck
	TcpTimeWait
	TcpDeleteTcb
	TcpUnknown
)

func (s TcpState) String() string {
	switch s {
	case TcpClosed:
		return "CLOSED"
	case TcpListen:
		return "LISTEN"
	case TcpSynSent:
		return "SYN_SENT"
	case TcpSynReceived:
		return "SYN_RCVD"
	case TcpEstablished:
		return "ESTABLISHED"
	case TcpFinWait1:
		return "FIN_WAIT_1"
	case TcpFinWait2:
		return "FIN_WAIT_2"
	case TcpCloseWait:
		return "CLOSE_WAIT"
	case TcpClosing:
		return "CLOSING"
	case TcpLastAck:
		return "LAST_ACK"
	case TcpTimeWait:
		return "TIME_WAIT"
	case TcpDeleteTcb:
		return "DELETE_TCB"
	default:
		return "UNKNOWN"
	}
}

// TcpFlags mirrors the subset of TCP header flags the classifier passes
// through for status inference (spec.md §4.1 rule 5).
type TcpFlags struct {
	SYN, ACK, FIN, RST, PSH, URG bool
}

// TcpStateFromFlags maps raw TCP flags to an inferred TcpState, per
// spec.md §8's mapping table and original_source's
// SocketStatus::from_xenet_tcp_flags.
func TcpStateFromFlags(f TcpFlags) TcpState {
	switch {
	case f.SYN && f.ACK:
		return TcpSynReceived
	case f.SYN:
		return TcpSynSent
	case f.FIN && f.ACK:
		return TcpClosing
	case f.FIN:
		return TcpFinWait1
	case f.ACK:
		return TcpEstablished
	default:
		return TcpUnknown
	}
}
