package netmodel

import "net/netip"

// Interface is the capture target supplied by the interface-discovery
// collaborator (internal/netif), grounded on original_source's
// default_net::Interface / xenet::net::interface::Interface.
type Interface struct {
	Index      uint32
	Name       string
	IPv4, IPv6 []netip.Addr
	MAC        string
	IsUp       bool
	IsLoopback bool
}

// LocalAddrs returns every bound address, IPv4 and IPv6 combined.
func (i Interface) LocalAddrs() []netip.Addr {
	addrs := make([]netip.Addr, 0, len(i.IPv4)+len(i.IPv6))
	addrs = append(addrs, i.IPv4...)
	addrs = append(addrs, i.IPv6...)
	return addrs
}
