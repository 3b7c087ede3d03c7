package netstat

import (
	"net/netip"
	"sort"

	"github.com/shellrow/nustat/internal/netmodel"
)

// Data is an immutable, point-in-time copy of the store (spec.md §4.7's
// get_snapshot output). Every map and *RemoteHostInfo is its own copy;
// mutating a Data value never affects the live store.
type Data struct {
	Interface   netmodel.Interface
	Traffic     netmodel.TrafficInfo
	RemoteHosts map[netip.Addr]*netmodel.RemoteHostInfo
	Sockets     map[netmodel.SocketKey]netmodel.TrafficInfo
	LocalPorts  map[netmodel.PortKey]netmodel.TrafficInfo
	Connections map[netmodel.ConnectionKey]netmodel.ConnectionInfo
	ReverseDNS  map[netip.Addr]string
}

// Snapshot takes a consistent, deep copy of the store's mutable fields
// and resets the store to a fresh epoch in the same call, so no packet
// observed between the copy and the reset can be lost or double-counted
// (spec.md §4.7, invariant 3). Per spec.md §5 ("readers that want a
// coherent snapshot MUST acquire all data locks in the same fixed
// order"), the four fields the traffic.bytes == Σ host.bytes atomicity
// property (spec.md §8) depends on -- traffic, remoteHosts, sockets,
// localPorts -- are held together, in Update's fixed order, for the
// whole copy-and-reset, so no concurrent Update can land between two of
// them and split a frame's contribution across epochs. connections and
// reverseDNS carry no such cross-field invariant, so they are copied and
// cleared under their own lock independently; interface is copied and
// kept.
func (s *Store) Snapshot() Data {
	s.interfaceMu.RLock()
	iface := s.iface
	s.interfaceMu.RUnlock()

	s.localIPsMu.RLock()
	defer s.localIPsMu.RUnlock()

	s.trafficMu.Lock()
	defer s.trafficMu.Unlock()

	s.remoteHostsMu.Lock()
	defer s.remoteHostsMu.Unlock()

	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()

	s.localPortsMu.Lock()
	defer s.localPortsMu.Unlock()

	traffic := s.traffic
	s.traffic = netmodel.TrafficInfo{}

	hosts := make(map[netip.Addr]*netmodel.RemoteHostInfo, len(s.remoteHosts))
	for ip, h := range s.remoteHosts {
		hosts[ip] = h.Clone()
	}
	s.remoteHosts = make(map[netip.Addr]*netmodel.RemoteHostInfo)

	sockets := make(map[netmodel.SocketKey]netmodel.TrafficInfo, len(s.sockets))
	for k, v := range s.sockets {
		sockets[k] = v
	}
	s.sockets = make(map[netmodel.SocketKey]netmodel.TrafficInfo)

	ports := make(map[netmodel.PortKey]netmodel.TrafficInfo, len(s.localPorts))
	for k, v := range s.localPorts {
		ports[k] = v
	}
	s.localPorts = make(map[netmodel.PortKey]netmodel.TrafficInfo)

	s.connectionsMu.Lock()
	conns := make(map[netmodel.ConnectionKey]netmodel.ConnectionInfo, len(s.connections))
	for k, v := range s.connections {
		conns[k] = v
	}
	s.connections = make(map[netmodel.ConnectionKey]netmodel.ConnectionInfo)
	s.connectionsMu.Unlock()

	s.reverseDNSMu.Lock()
	dns := make(map[netip.Addr]string, len(s.reverseDNS))
	for k, v := range s.reverseDNS {
		dns[k] = v
	}
	s.reverseDNS = make(map[netip.Addr]string)
	s.reverseDNSMu.Unlock()

	return Data{
		Interface:   iface,
		Traffic:     traffic,
		RemoteHosts: hosts,
		Sockets:     sockets,
		LocalPorts:  ports,
		Connections: conns,
		ReverseDNS:  dns,
	}
}

// Merge combines two epoch snapshots additively (spec.md §4.7): traffic
// counters and per-host/per-port/per-socket traffic sum; the
// authoritative connection table, reverse-DNS cache and interface take
// the later (second argument, b) value on conflict since those aren't
// counters, a merged connection keeping a's process when b has none. A
// merged host keeps a's hostname and country/ASN fields when they are
// non-empty and takes b's otherwise. Merge is commutative on the
// counters only; callers that need associativity across more than two
// epochs should always merge in chronological order.
func Merge(a, b Data) Data {
	out := Data{
		Traffic:     a.Traffic.Add(b.Traffic),
		RemoteHosts: make(map[netip.Addr]*netmodel.RemoteHostInfo, len(a.RemoteHosts)+len(b.RemoteHosts)),
		Sockets:     make(map[netmodel.SocketKey]netmodel.TrafficInfo, len(a.Sockets)+len(b.Sockets)),
		LocalPorts:  make(map[netmodel.PortKey]netmodel.TrafficInfo, len(a.LocalPorts)+len(b.LocalPorts)),
		Connections: make(map[netmodel.ConnectionKey]netmodel.ConnectionInfo, len(a.Connections)+len(b.Connections)),
		ReverseDNS:  make(map[netip.Addr]string, len(a.ReverseDNS)+len(b.ReverseDNS)),
	}
	out.Interface = b.Interface
	if out.Interface.Name == "" {
		out.Interface = a.Interface
	}

	for ip, h := range a.RemoteHosts {
		out.RemoteHosts[ip] = h.Clone()
	}
	for ip, h := range b.RemoteHosts {
		if existing, ok := out.RemoteHosts[ip]; ok {
			merged := existing.Clone()
			merged.Traffic = merged.Traffic.Add(h.Traffic)
			for k, v := range h.PerPortTraffic {
				merged.PerPortTraffic[k] = merged.PerPortTraffic[k].Add(v)
			}
			for k, v := range h.ProtocolTraffic {
				merged.ProtocolTraffic[k] = merged.ProtocolTraffic[k].Add(v)
			}
			if merged.Hostname == "" {
				merged.Hostname = h.Hostname
			}
			if merged.CountryCode == "" {
				merged.CountryCode = h.CountryCode
				merged.CountryName = h.CountryName
				merged.ASN = h.ASN
				merged.ASName = h.ASName
			}
			if h.UpdatedAt > merged.UpdatedAt {
				merged.UpdatedAt = h.UpdatedAt
			}
			out.RemoteHosts[ip] = merged
		} else {
			out.RemoteHosts[ip] = h.Clone()
		}
	}

	for k, v := range a.Sockets {
		out.Sockets[k] = v
	}
	for k, v := range b.Sockets {
		out.Sockets[k] = out.Sockets[k].Add(v)
	}

	for k, v := range a.LocalPorts {
		out.LocalPorts[k] = v
	}
	for k, v := range b.LocalPorts {
		out.LocalPorts[k] = out.LocalPorts[k].Add(v)
	}

	for k, v := range a.Connections {
		out.Connections[k] = v
	}
	for k, v := range b.Connections {
		if existing, ok := out.Connections[k]; ok {
			out.Connections[k] = netmodel.MergeConnectionInfo(existing, v)
		} else {
			out.Connections[k] = v
		}
	}

	for k, v := range a.ReverseDNS {
		out.ReverseDNS[k] = v
	}
	for k, v := range b.ReverseDNS {
		out.ReverseDNS[k] = v
	}

	return out
}

// Overview is the single-number summary the metrics exporter and
// terminal header read (spec.md §4.7).
type Overview struct {
	Traffic        netmodel.TrafficInfo
	RemoteHosts    int
	Connections    int
	EstablishedTCP int
}

func (d Data) Overview() Overview {
	ov := Overview{Traffic: d.Traffic, RemoteHosts: len(d.RemoteHosts), Connections: len(d.Connections)}
	for _, c := range d.Connections {
		if c.Status == netmodel.TcpEstablished {
			ov.EstablishedTCP++
		}
	}
	return ov
}

// TopRemoteHosts returns the n busiest remote hosts by total bytes,
// descending, resolving hostnames from ReverseDNS and country/ASN from
// the host record itself (spec.md §4.7's get_top_remote_hosts).
func (d Data) TopRemoteHosts(n int) []netmodel.HostDisplayInfo {
	out := make([]netmodel.HostDisplayInfo, 0, len(d.RemoteHosts))
	for ip, h := range d.RemoteHosts {
		hostname := h.Hostname
		if hostname == "" {
			hostname = d.ReverseDNS[ip]
		}
		out = append(out, netmodel.HostDisplayInfo{
			IP:          ip,
			Hostname:    hostname,
			MAC:         h.MAC,
			CountryCode: h.CountryCode,
			CountryName: h.CountryName,
			ASN:         h.ASN,
			ASName:      h.ASName,
			Traffic:     h.Traffic,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Traffic.Bytes() > out[j].Traffic.Bytes() })
	return truncateHosts(out, n)
}

func truncateHosts(in []netmodel.HostDisplayInfo, n int) []netmodel.HostDisplayInfo {
	if n >= 0 && n < len(in) {
		return in[:n]
	}
	return in
}

// connectionRate resolves a ConnectionKey's traffic rate per spec.md
// §4.7's two-tier lookup: prefer sockets[remote, proto] (the capture
// path's per-remote-socket rate); when that key saw no packet-path
// traffic, fall back to local_ports[local_port, proto], matching
// original_source/nustat-core/src/net/stat.rs's
// `Some(socket) => ... / None => local_port_traffic_map.get(...)` join
// in both get_top_processes and get_top_connections.
func (d Data) connectionRate(key netmodel.ConnectionKey) netmodel.TrafficInfo {
	sockKey := netmodel.SocketKey{Addr: key.Remote, Protocol: key.Protocol}
	if traffic, ok := d.Sockets[sockKey]; ok {
		return traffic
	}
	portKey := netmodel.PortKey{Port: key.Local.Port(), Protocol: key.Protocol}
	return d.LocalPorts[portKey]
}

// TopProcesses returns the n busiest processes by total bytes attributed
// through their owned connections (spec.md §4.7's get_top_processes),
// joining Connections -> Process and summing each ConnectionKey's rate.
func (d Data) TopProcesses(n int) []netmodel.ProcessDisplayInfo {
	byPID := make(map[uint32]*netmodel.ProcessDisplayInfo)
	for key, conn := range d.Connections {
		if conn.Process == nil {
			continue
		}
		entry, ok := byPID[conn.Process.PID]
		if !ok {
			entry = &netmodel.ProcessDisplayInfo{Process: *conn.Process}
			byPID[conn.Process.PID] = entry
		}
		entry.Traffic = entry.Traffic.Add(d.connectionRate(key))
	}
	out := make([]netmodel.ProcessDisplayInfo, 0, len(byPID))
	for _, v := range byPID {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Traffic.Bytes() > out[j].Traffic.Bytes() })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// ConnectionDisplayInfo is one row of get_top_connections: a flow with
// its resolved process and remote-host enrichment.
type ConnectionDisplayInfo struct {
	Key     netmodel.ConnectionKey
	Status  netmodel.TcpState
	Process *netmodel.ProcessInfo
	Host    *netmodel.HostDisplayInfo
	Traffic netmodel.TrafficInfo
}

// TopConnections returns the n busiest flows by total bytes (spec.md
// §4.7's get_top_connections), resolving the remote host enrichment by
// address when available.
func (d Data) TopConnections(n int) []ConnectionDisplayInfo {
	out := make([]ConnectionDisplayInfo, 0, len(d.Connections))
	for key, conn := range d.Connections {
		row := ConnectionDisplayInfo{
			Key:     key,
			Status:  conn.Status,
			Process: conn.Process,
			Traffic: d.connectionRate(key),
		}
		if h, ok := d.RemoteHosts[key.Remote.Addr()]; ok {
			hostname := h.Hostname
			if hostname == "" {
				hostname = d.ReverseDNS[key.Remote.Addr()]
			}
			disp := netmodel.HostDisplayInfo{
				IP: key.Remote.Addr(), Hostname: hostname, MAC: h.MAC,
				CountryCode: h.CountryCode, CountryName: h.CountryName,
				ASN: h.ASN, ASName: h.ASName, Traffic: h.Traffic,
			}
			row.Host = &disp
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Traffic.Bytes() > out[j].Traffic.Bytes() })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// TopServices aggregates per-remote-port traffic (spec.md §4.7's
// get_top_services: sockets is keyed by remote socket, so its port is the
// service port regardless of local ephemeral port) and joins it against
// the bundled port->service-name table, excluding any port the table
// doesn't resolve. serviceName may be nil, in which case every port is
// excluded.
func (d Data) TopServices(n int, serviceName func(port uint16) (string, bool)) []netmodel.ServiceDisplayInfo {
	byPort := make(map[netmodel.PortKey]netmodel.TrafficInfo)
	for key, traffic := range d.Sockets {
		port := key.Addr.Port()
		if port == 0 {
			continue
		}
		portKey := netmodel.PortKey{Port: port, Protocol: key.Protocol}
		byPort[portKey] = byPort[portKey].Add(traffic)
	}
	out := make([]netmodel.ServiceDisplayInfo, 0, len(byPort))
	for key, traffic := range byPort {
		if serviceName == nil {
			continue
		}
		name, ok := serviceName(key.Port)
		if !ok {
			continue
		}
		out = append(out, netmodel.ServiceDisplayInfo{
			Port: key.Port, Protocol: key.Protocol, Name: name, Traffic: traffic,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Traffic.Bytes() > out[j].Traffic.Bytes() })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// ServiceNameFunc adapts the store's current *ipdb.Database to the
// function TopServices expects, reading it under ipdbMu on every call.
func (s *Store) ServiceNameFunc() func(uint16) (string, bool) {
	return func(port uint16) (string, bool) {
		s.ipdbMu.RLock()
		defer s.ipdbMu.RUnlock()
		return s.ipdb.ServiceName(port)
	}
}
