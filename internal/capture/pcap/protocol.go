package pcap

import (
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"

	"github.com/shellrow/nustat/internal/netmodel"
)

func addrFromIP(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// protocolFor maps an IPv4 next-protocol field to the link-breakdown
// Protocol tag (spec.md §3's protocol_stat restoration). TCP/UDP get
// their own bucket; everything else (ICMP among it) falls back to
// ProtocolICMP or ProtocolUnknown.
func protocolFor(p layers.IPProtocol) netmodel.Protocol {
	switch p {
	case layers.IPProtocolTCP:
		return netmodel.ProtocolTCP
	case layers.IPProtocolUDP:
		return netmodel.ProtocolUDP
	case layers.IPProtocolICMPv4, layers.IPProtocolICMPv6:
		return netmodel.ProtocolICMP
	default:
		return netmodel.ProtocolUnknown
	}
}
