// Package netif resolves an interface name to its index and bound
// addresses via github.com/vishvananda/netlink, producing the full
// local address set a store uses to seed its local_ips table.
package netif

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/shellrow/nustat/internal/netmodel"
)

// Resolve looks up ifaceName and returns its index, MAC, and bound
// IPv4/IPv6 addresses.
func Resolve(ifaceName string) (netmodel.Interface, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return netmodel.Interface{}, fmt.Errorf("netif: link %q: %w", ifaceName, err)
	}
	attrs := link.Attrs()

	iface := netmodel.Interface{
		Index:      uint32(attrs.Index),
		Name:       ifaceName,
		MAC:        attrs.HardwareAddr.String(),
		IsUp:       attrs.Flags&net.FlagUp != 0,
		IsLoopback: attrs.Flags&net.FlagLoopback != 0,
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return netmodel.Interface{}, fmt.Errorf("netif: addr list for %q: %w", ifaceName, err)
	}
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(a.IPNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() {
			iface.IPv4 = append(iface.IPv4, addr)
		} else {
			iface.IPv6 = append(iface.IPv6, addr)
		}
	}
	return iface, nil
}

// ListNames returns every interface netlink can enumerate, for the CLI's
// interface picker when no --interface flag was given (spec.md §6).
func ListNames() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netif: link list: %w", err)
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.Attrs().Name)
	}
	return out, nil
}
