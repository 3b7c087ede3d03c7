// Package netstat implements the shared in-memory telemetry aggregate
// and its snapshot/merge protocol: bounded per-field locking under
// packet-rate writes, atomic snapshot-and-reset, and a reconciliation
// join between packet-path rate data and socket-reconciler process
// attribution.
//
// Store guards each field with its own mutex rather than one coarse
// lock, acquired in a fixed order inside Update and released through
// Go's defer stack in reverse.
package netstat

import (
	"net/netip"
	"sync"
	"time"

	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/classify"
	"github.com/shellrow/nustat/internal/ipdb"
	"github.com/shellrow/nustat/internal/netmodel"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Store is the shared, concurrently-written telemetry aggregate.
// Exported as Store; callers typically hold it behind a *Store pointer
// shared by every capture worker, reconciler, and reader.
type Store struct {
	interfaceMu sync.RWMutex
	iface       netmodel.Interface

	trafficMu sync.Mutex
	traffic   netmodel.TrafficInfo

	remoteHostsMu sync.Mutex
	remoteHosts   map[netip.Addr]*netmodel.RemoteHostInfo

	socketsMu sync.Mutex
	sockets   map[netmodel.SocketKey]netmodel.TrafficInfo

	localPortsMu sync.Mutex
	localPorts   map[netmodel.PortKey]netmodel.TrafficInfo

	connectionsMu sync.Mutex
	connections   map[netmodel.ConnectionKey]netmodel.ConnectionInfo

	reverseDNSMu sync.Mutex
	reverseDNS   map[netip.Addr]string

	localIPsMu sync.RWMutex
	localIPs   map[netip.Addr]struct{}

	ipdbMu sync.RWMutex
	ipdb   *ipdb.Database
}

// New returns an empty store. local_ips always contains both loopback
// addresses even before SetInterface is called (spec.md invariant 5).
func New() *Store {
	s := &Store{
		remoteHosts: make(map[netip.Addr]*netmodel.RemoteHostInfo),
		sockets:     make(map[netmodel.SocketKey]netmodel.TrafficInfo),
		localPorts:  make(map[netmodel.PortKey]netmodel.TrafficInfo),
		connections: make(map[netmodel.ConnectionKey]netmodel.ConnectionInfo),
		reverseDNS:  make(map[netip.Addr]string),
		localIPs:    make(map[netip.Addr]struct{}),
		ipdb:        ipdb.New(),
	}
	s.seedLoopbacks()
	return s
}

func (s *Store) seedLoopbacks() {
	s.localIPsMu.Lock()
	defer s.localIPsMu.Unlock()
	s.localIPs[netip.MustParseAddr("127.0.0.1")] = struct{}{}
	s.localIPs[netip.MustParseAddr("::1")] = struct{}{}
}

// SetInterface atomically swaps the bound interface, recomputes
// local_ips from its addresses plus the loopbacks, and resets the store
// (spec.md §4.2).
func (s *Store) SetInterface(iface netmodel.Interface) {
	s.interfaceMu.Lock()
	s.iface = iface
	s.interfaceMu.Unlock()

	s.localIPsMu.Lock()
	s.localIPs = make(map[netip.Addr]struct{}, len(iface.IPv4)+len(iface.IPv6)+2)
	s.localIPs[netip.MustParseAddr("127.0.0.1")] = struct{}{}
	s.localIPs[netip.MustParseAddr("::1")] = struct{}{}
	for _, a := range iface.LocalAddrs() {
		s.localIPs[a] = struct{}{}
	}
	s.localIPsMu.Unlock()

	s.Reset()
}

// Interface returns the bound interface's index and name.
func (s *Store) Interface() netmodel.Interface {
	s.interfaceMu.RLock()
	defer s.interfaceMu.RUnlock()
	return s.iface
}

// LocalAddrSet returns a point-in-time copy of local_ips for use by a
// capture worker's classifier call, satisfying spec.md §4.1's
// requirement that the classifier never touch shared state directly.
func (s *Store) LocalAddrSet() classify.LocalAddrSet {
	s.localIPsMu.RLock()
	defer s.localIPsMu.RUnlock()
	addrs := make([]netip.Addr, 0, len(s.localIPs))
	for a := range s.localIPs {
		addrs = append(addrs, a)
	}
	return classify.NewLocalAddrSet(addrs)
}

// LoadIPDB installs an already-built database (e.g. decoded from a
// downloaded blob). The CLI loads the database once at startup, through
// LoadIPDBFromFiles, before it starts the capture worker; the operation
// itself is safe from any caller.
func (s *Store) LoadIPDB(db *ipdb.Database) {
	s.ipdbMu.Lock()
	defer s.ipdbMu.Unlock()
	s.ipdb = db
}

// LoadIPDBFromFiles reads the five bundled blobs from disk and installs
// them. A missing or unreadable file is logged and otherwise ignored
// (spec.md §7: missing IPDB is never fatal).
func (s *Store) LoadIPDBFromFiles(ipv4Path, ipv6Path, countryPath, asPath, servicePath string) {
	db, err := ipdb.LoadFiles(ipv4Path, ipv6Path, countryPath, asPath, servicePath)
	if err != nil {
		applog.Warn("ipdb: failed to load bundled databases (run `nustat update --db` to download them): %v", err)
		return
	}
	s.LoadIPDB(db)
}

// Update applies one classified frame's contribution to every counter it
// touches (spec.md §4.2). Locks are acquired in the fixed order
// local_ips -> traffic -> remote_hosts -> sockets -> local_ports -> ipdb
// and released in reverse via a defer stack, matching spec.md §4.2's
// locking discipline and original_source's update()'s explicit
// lock/drop comments.
func (s *Store) Update(cf netmodel.ClassifiedFrame) {
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

	s.ipdbMu.RLock()
	defer s.ipdbMu.RUnlock()

	now := nowRFC3339()

	if cf.Direction == netmodel.DirectionEgress {
		s.traffic.AddOut(cf.PacketLen)
	} else {
		s.traffic.AddIn(cf.PacketLen)
	}

	host, exists := s.remoteHosts[cf.RemoteIP]
	if !exists {
		host = netmodel.NewRemoteHostInfo(cf.MAC, cf.RemoteIP, now)
		if info, ok := s.ipdb.Lookup(cf.RemoteIP); ok {
			host.CountryCode = info.CountryCode
			host.CountryName = info.CountryName
			host.ASN = info.ASN
			host.ASName = info.ASName
		}
		s.remoteHosts[cf.RemoteIP] = host
	}
	if cf.Direction == netmodel.DirectionEgress {
		host.Traffic.AddOut(cf.PacketLen)
	} else {
		host.Traffic.AddIn(cf.PacketLen)
	}
	host.UpdatedAt = now

	linkTraffic := host.ProtocolTraffic[cf.LinkProtocol]
	if cf.Direction == netmodel.DirectionEgress {
		linkTraffic.AddOut(cf.PacketLen)
	} else {
		linkTraffic.AddIn(cf.PacketLen)
	}
	host.ProtocolTraffic[cf.LinkProtocol] = linkTraffic

	if cf.Protocol != nil {
		portKey := netmodel.PortKey{Port: cf.RemotePort, Protocol: *cf.Protocol}
		portTraffic := host.PerPortTraffic[portKey]
		if cf.Direction == netmodel.DirectionEgress {
			portTraffic.AddOut(cf.PacketLen)
		} else {
			portTraffic.AddIn(cf.PacketLen)
		}
		host.PerPortTraffic[portKey] = portTraffic

		sockKey := netmodel.SocketKey{
			Addr:     netip.AddrPortFrom(cf.RemoteIP, cf.RemotePort),
			Protocol: *cf.Protocol,
		}
		sockTraffic := s.sockets[sockKey]
		if cf.Direction == netmodel.DirectionEgress {
			sockTraffic.AddOut(cf.PacketLen)
		} else {
			sockTraffic.AddIn(cf.PacketLen)
		}
		s.sockets[sockKey] = sockTraffic

		localKey := netmodel.PortKey{Port: cf.LocalPort, Protocol: *cf.Protocol}
		localTraffic := s.localPorts[localKey]
		if cf.Direction == netmodel.DirectionEgress {
			localTraffic.AddOut(cf.PacketLen)
		} else {
			localTraffic.AddIn(cf.PacketLen)
		}
		s.localPorts[localKey] = localTraffic

		if *cf.Protocol == netmodel.TransportTCP && cf.TCPFlags != nil {
			s.inferConnectionStatusLocked(cf)
		}
	}
}

// inferConnectionStatusLocked attaches an inferred TcpState to an
// *existing* ConnectionKey only when the socket reconciler hasn't
// already attached an authoritative one (spec.md §4.2, §9's Open
// Question resolution: the packet path never creates ConnectionKeys).
// It takes connectionsMu itself, while Update still holds its six locks;
// connectionsMu is not one of the six fields Update()'s documented order
// covers, and since it is always taken last (after ipdb) and no caller
// takes one of the six while holding it, the ordering stays acyclic.
func (s *Store) inferConnectionStatusLocked(cf netmodel.ClassifiedFrame) {
	key := netmodel.ConnectionKey{
		Local:    netip.AddrPortFrom(cf.LocalIP, cf.LocalPort),
		Remote:   netip.AddrPortFrom(cf.RemoteIP, cf.RemotePort),
		Protocol: netmodel.TransportTCP,
	}
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()
	existing, ok := s.connections[key]
	if !ok {
		// No reconciler-created key yet; nothing to annotate.
		return
	}
	if existing.Status != netmodel.TcpUnknown {
		return
	}
	existing.Status = netmodel.TcpStateFromFlags(*cf.TCPFlags)
	s.connections[key] = existing
}

// AttachSockets replaces the authoritative connection set to match the
// freshly-enumerated socket list (spec.md §4.4). Called by the socket
// reconciler, never by the capture path.
func (s *Store) AttachSockets(sockets []netmodel.SocketInfo) {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	fresh := make(map[netmodel.ConnectionKey]struct{}, len(sockets))
	for _, sock := range sockets {
		remote := sock.Remote
		if remote == nil {
			unspecified := netip.IPv4Unspecified()
			if sock.Family == netmodel.FamilyIPv6 {
				unspecified = netip.IPv6Unspecified()
			}
			z := netip.AddrPortFrom(unspecified, 0)
			remote = &z
		}
		key := netmodel.ConnectionKey{Local: sock.Local, Remote: *remote, Protocol: sock.Protocol}
		fresh[key] = struct{}{}

		info := netmodel.ConnectionInfo{Status: sock.State, Process: sock.Process}
		if existing, ok := s.connections[key]; ok {
			info = netmodel.MergeConnectionInfo(existing, info)
		}
		s.connections[key] = info
	}

	for key := range s.connections {
		stillPresent := false
		for _, sock := range sockets {
			if sock.Local == key.Local {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			delete(s.connections, key)
		}
	}
}

// AttachDNS idempotently records a reverse-DNS result, overwriting the
// hostname only if it was empty (spec.md §4.2/§4.5).
func (s *Store) AttachDNS(addr netip.Addr, hostname string) {
	s.reverseDNSMu.Lock()
	s.reverseDNS[addr] = hostname
	s.reverseDNSMu.Unlock()

	s.remoteHostsMu.Lock()
	defer s.remoteHostsMu.Unlock()
	if host, ok := s.remoteHosts[addr]; ok && host.Hostname == "" {
		host.Hostname = hostname
	}
}

// HostsMissingCountry returns a point-in-time copy of remote IPs whose
// enrichment fields are still empty, for the IP-info reconciler (spec.md
// §4.6) to resolve outside any lock.
func (s *Store) HostsMissingCountry() []netip.Addr {
	s.remoteHostsMu.Lock()
	defer s.remoteHostsMu.Unlock()
	var out []netip.Addr
	for ip, host := range s.remoteHosts {
		if host.CountryCode == "" {
			out = append(out, ip)
		}
	}
	return out
}

// HostsMissingHostname is the DNS reconciler's equivalent read (spec.md
// §4.5).
func (s *Store) HostsMissingHostname() []netip.Addr {
	s.remoteHostsMu.Lock()
	defer s.remoteHostsMu.Unlock()
	var out []netip.Addr
	for ip, host := range s.remoteHosts {
		if host.Hostname == "" {
			out = append(out, ip)
		}
	}
	return out
}

// BackfillEnrichment fills empty country/ASN fields from the current
// IPDB snapshot (spec.md §4.6's cold-start recovery sweep).
func (s *Store) BackfillEnrichment(addrs []netip.Addr) {
	s.ipdbMu.RLock()
	db := s.ipdb
	s.ipdbMu.RUnlock()

	s.remoteHostsMu.Lock()
	defer s.remoteHostsMu.Unlock()
	for _, addr := range addrs {
		host, ok := s.remoteHosts[addr]
		if !ok || host.CountryCode != "" {
			continue
		}
		if info, ok := db.Lookup(addr); ok {
			host.CountryCode = info.CountryCode
			host.CountryName = info.CountryName
			host.ASN = info.ASN
			host.ASName = info.ASName
		}
	}
}

// Reset atomically zeroes traffic, hosts, sockets, local_ports,
// connections, and reverse_dns, preserving local_ips, interface, and
// ipdb (spec.md invariant 4).
func (s *Store) Reset() {
	s.trafficMu.Lock()
	s.traffic = netmodel.TrafficInfo{}
	s.trafficMu.Unlock()

	s.remoteHostsMu.Lock()
	s.remoteHosts = make(map[netip.Addr]*netmodel.RemoteHostInfo)
	s.remoteHostsMu.Unlock()

	s.socketsMu.Lock()
	s.sockets = make(map[netmodel.SocketKey]netmodel.TrafficInfo)
	s.socketsMu.Unlock()

	s.localPortsMu.Lock()
	s.localPorts = make(map[netmodel.PortKey]netmodel.TrafficInfo)
	s.localPortsMu.Unlock()

	s.connectionsMu.Lock()
	s.connections = make(map[netmodel.ConnectionKey]netmodel.ConnectionInfo)
	s.connectionsMu.Unlock()

	s.reverseDNSMu.Lock()
	s.reverseDNS = make(map[netip.Addr]string)
	s.reverseDNSMu.Unlock()
}
