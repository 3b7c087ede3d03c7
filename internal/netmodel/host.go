package netmodel

import "net/netip"

// RemoteHostInfo accumulates everything observed about one remote
// address. Created on first packet, never deleted mid-epoch (spec.md
// §3). Field layout mirrors original_source's net/host.rs, generalized
// from if_index/if_name (dropped — redundant with the store's single
// bound interface) to the ProtocolTraffic breakdown SPEC_FULL.md §3
// restores from the original's protocol_stat map.
type RemoteHostInfo struct {
	MAC             string
	IP              netip.Addr
	Hostname        string
	CountryCode     string
	CountryName     string
	ASN             uint32
	ASName          string
	Traffic         TrafficInfo
	PerPortTraffic  map[PortKey]TrafficInfo
	ProtocolTraffic map[Protocol]TrafficInfo
	FirstSeen       string // RFC3339
	UpdatedAt       string // RFC3339
}

// NewRemoteHostInfo creates a host record for the first packet observed
// from ip, per original_source's RemoteHostInfo::new.
func NewRemoteHostInfo(mac string, ip netip.Addr, nowRFC3339 string) *RemoteHostInfo {
	return &RemoteHostInfo{
		MAC:             mac,
		IP:              ip,
		PerPortTraffic:  make(map[PortKey]TrafficInfo),
		ProtocolTraffic: make(map[Protocol]TrafficInfo),
		FirstSeen:       nowRFC3339,
		UpdatedAt:       nowRFC3339,
	}
}

// Clone returns a deep copy suitable for a snapshot (spec.md invariant 3
// must keep holding on the copy: FirstSeen <= UpdatedAt).
func (h *RemoteHostInfo) Clone() *RemoteHostInfo {
	c := *h
	c.PerPortTraffic = make(map[PortKey]TrafficInfo, len(h.PerPortTraffic))
	for k, v := range h.PerPortTraffic {
		c.PerPortTraffic[k] = v
	}
	c.ProtocolTraffic = make(map[Protocol]TrafficInfo, len(h.ProtocolTraffic))
	for k, v := range h.ProtocolTraffic {
		c.ProtocolTraffic[k] = v
	}
	return &c
}

// HostDisplayInfo is the read-only projection get_top_remote_hosts
// returns (spec.md §4.7).
type HostDisplayInfo struct {
	IP          netip.Addr
	Hostname    string
	MAC         string
	CountryCode string
	CountryName string
	ASN         uint32
	ASName      string
	Traffic     TrafficInfo
}

// ServiceDisplayInfo is the get_top_services projection, naming a
// well-known port.
type ServiceDisplayInfo struct {
	Port     uint16
	Protocol TransportProtocol
	Name     string
	Traffic  TrafficInfo
}
