package netmodel

import "net/netip"

// UserInfo identifies the owning OS account of a process, grounded on
// original_source's process.rs::UserInfo.
type UserInfo struct {
	UserID, GroupID, UserName string
	Groups                    []string
}

// ProcessInfo is supplied whole by the OS-probe collaborator
// (internal/osprobe), grounded on original_source's process.rs::ProcessInfo
// and populated via shirou/gopsutil/v3/process.
type ProcessInfo struct {
	PID         uint32
	Name        string
	ExePath     string
	Cmdline     []string
	Status      string
	User        *UserInfo
	StartTime   string // RFC3339
	ElapsedSecs uint64
}

// ProcessDisplayInfo is the get_top_processes projection: one process,
// its attributed traffic rate/volume.
type ProcessDisplayInfo struct {
	Process ProcessInfo
	Traffic TrafficInfo
}

// SocketInfo is one row from the OS socket probe (spec.md §6), joined
// with its owning process where known.
type SocketInfo struct {
	Local    netip.AddrPort
	Remote   *netip.AddrPort // nil for a listening/unconnected UDP socket
	Protocol TransportProtocol
	State    TcpState // only meaningful for TCP
	Family   AddressFamily
	Process  *ProcessInfo
}

// ConnectionInfo is the authoritative per-flow record the socket
// reconciler maintains (spec.md §3/§4.4).
type ConnectionInfo struct {
	Status  TcpState
	Process *ProcessInfo
}

// MergeConnectionInfo implements the merge rule from spec.md §3: keep
// the later status, prefer a non-null process.
func MergeConnectionInfo(a, b ConnectionInfo) ConnectionInfo {
	out := b
	if out.Process == nil {
		out.Process = a.Process
	}
	return out
}
