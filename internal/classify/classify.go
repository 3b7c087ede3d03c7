// Package classify implements the pure, allocation-light frame
// classifier of spec.md §4.1: direction discrimination, role
// resolution, and MAC/port/protocol extraction. It touches no shared
// state — callers own locking of whatever local-address set they pass
// in.
//
// Grounded on original_source's net/stat.rs::update, which interleaves
// this logic with store mutation; here it is split out as its own pure
// step per spec.md's "classifier MUST NOT touch shared state" rule.
package classify

import (
	"net/netip"

	"github.com/shellrow/nustat/internal/netmodel"
)

// LocalAddrSet is the read-only view of local addresses the classifier
// tests membership against. Callers (capture workers) obtain this from
// the store's local_ips field under its own lock and pass a plain copy
// in, so the classifier itself never locks anything.
type LocalAddrSet map[netip.Addr]struct{}

func NewLocalAddrSet(addrs []netip.Addr) LocalAddrSet {
	s := make(LocalAddrSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

func (s LocalAddrSet) Contains(a netip.Addr) bool {
	_, ok := s[a]
	return ok
}

// Classify applies spec.md §4.1 rules 1-5 in order, short-circuiting to
// "drop" (ok=false) at the first rule that doesn't resolve.
func Classify(f netmodel.Frame, local LocalAddrSet) (netmodel.ClassifiedFrame, bool) {
	if f.IP == nil {
		return netmodel.ClassifiedFrame{}, false
	}

	var direction netmodel.Direction
	switch {
	case local.Contains(f.IP.Src) && local.Contains(f.IP.Dst):
		// Both endpoints local: no remote peer to attribute, so drop.
		return netmodel.ClassifiedFrame{}, false
	case local.Contains(f.IP.Src):
		direction = netmodel.DirectionEgress
	case local.Contains(f.IP.Dst):
		direction = netmodel.DirectionIngress
	default:
		return netmodel.ClassifiedFrame{}, false
	}

	var localIP, remoteIP netip.Addr
	if direction == netmodel.DirectionEgress {
		localIP, remoteIP = f.IP.Src, f.IP.Dst
	} else {
		localIP, remoteIP = f.IP.Dst, f.IP.Src
	}

	var localPort, remotePort uint16
	var proto *netmodel.TransportProtocol
	var flags *netmodel.TcpFlags
	if f.Transport != nil {
		p := f.Transport.Proto
		proto = &p
		if direction == netmodel.DirectionEgress {
			localPort, remotePort = f.Transport.SrcPort, f.Transport.DstPort
		} else {
			localPort, remotePort = f.Transport.DstPort, f.Transport.SrcPort
		}
		if f.Transport.HasTCP {
			flags = &f.Transport.Flags
		}
	}

	mac := "00:00:00:00:00:00"
	if f.Datalink != nil {
		if direction == netmodel.DirectionEgress {
			if f.Datalink.DstMAC != "" {
				mac = f.Datalink.DstMAC
			}
		} else {
			if f.Datalink.SrcMAC != "" {
				mac = f.Datalink.SrcMAC
			}
		}
	}

	return netmodel.ClassifiedFrame{
		Direction:    direction,
		LocalIP:      localIP,
		RemoteIP:     remoteIP,
		LocalPort:    localPort,
		RemotePort:   remotePort,
		MAC:          mac,
		Protocol:     proto,
		LinkProtocol: f.IP.Protocol,
		TCPFlags:     flags,
		PacketLen:    f.PacketLen,
		Timestamp:    f.Timestamp,
	}, true
}
