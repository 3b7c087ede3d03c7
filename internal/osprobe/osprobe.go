// Package osprobe implements the SocketProbe collaborator (spec.md §6)
// over github.com/shirou/gopsutil/v3, joining each enumerated socket
// with its owning process in one pass — the same join original_source's
// socket.rs::get_sockets_info performs against netstat2 plus
// process::get_process_map, and the same library the rest of the
// example pack (LanternOps-breeze, taniwha3-tidewatch) reaches for on
// this exact problem.
package osprobe

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	gprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/shellrow/nustat/internal/netmodel"
)

// Probe implements internal/reconcile's SocketProbe interface.
type Probe struct{}

func New() *Probe { return &Probe{} }

// ListSockets enumerates every TCP/UDP socket gopsutil can see and
// attaches process info for sockets with a known owning PID. families
// and protocols filter the result; an empty slice for either means "all".
func (p *Probe) ListSockets(ctx context.Context, families []netmodel.AddressFamily, protocols []netmodel.TransportProtocol) ([]netmodel.SocketInfo, error) {
	kind := gopsutilKind(protocols)
	conns, err := gnet.ConnectionsWithContext(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("osprobe: gopsutil connections: %w", err)
	}

	processCache := make(map[int32]*netmodel.ProcessInfo)
	out := make([]netmodel.SocketInfo, 0, len(conns))
	for _, c := range conns {
		info, ok := convert(c)
		if !ok {
			continue
		}
		if !familyAllowed(families, info.Family) || !protocolAllowed(protocols, info.Protocol) {
			continue
		}
		if c.Pid > 0 {
			if cached, hit := processCache[c.Pid]; hit {
				info.Process = cached
			} else if proc, err := lookupProcess(ctx, c.Pid); err == nil {
				processCache[c.Pid] = proc
				info.Process = proc
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func gopsutilKind(protocols []netmodel.TransportProtocol) string {
	if len(protocols) == 0 {
		return "all"
	}
	hasTCP, hasUDP := false, false
	for _, p := range protocols {
		switch p {
		case netmodel.TransportTCP:
			hasTCP = true
		case netmodel.TransportUDP:
			hasUDP = true
		}
	}
	switch {
	case hasTCP && hasUDP:
		return "all"
	case hasTCP:
		return "tcp"
	case hasUDP:
		return "udp"
	default:
		return "all"
	}
}

func familyAllowed(families []netmodel.AddressFamily, f netmodel.AddressFamily) bool {
	if len(families) == 0 {
		return true
	}
	for _, want := range families {
		if want == f {
			return true
		}
	}
	return false
}

func protocolAllowed(protocols []netmodel.TransportProtocol, p netmodel.TransportProtocol) bool {
	if len(protocols) == 0 {
		return true
	}
	for _, want := range protocols {
		if want == p {
			return true
		}
	}
	return false
}

// convert maps one gopsutil ConnectionStat onto netmodel.SocketInfo.
// gopsutil's Type field is 1 for SOCK_STREAM (TCP), 2 for SOCK_DGRAM
// (UDP); Family is the AF_INET/AF_INET6 constant, mirrored in
// LanternOps-breeze's getProtocolString.
func convert(c gnet.ConnectionStat) (netmodel.SocketInfo, bool) {
	localAddr, err := netip.ParseAddr(c.Laddr.IP)
	if err != nil || c.Laddr.IP == "" {
		return netmodel.SocketInfo{}, false
	}

	var protocol netmodel.TransportProtocol
	switch c.Type {
	case 1:
		protocol = netmodel.TransportTCP
	case 2:
		protocol = netmodel.TransportUDP
	default:
		return netmodel.SocketInfo{}, false
	}

	family := netmodel.FamilyIPv4
	if localAddr.Is6() && !localAddr.Is4In6() {
		family = netmodel.FamilyIPv6
	}

	info := netmodel.SocketInfo{
		Local:    netip.AddrPortFrom(localAddr, uint16(c.Laddr.Port)),
		Protocol: protocol,
		Family:   family,
		State:    netmodel.TcpUnknown,
	}
	if protocol == netmodel.TransportTCP {
		info.State = tcpStateFromGopsutil(c.Status)
	}
	if c.Raddr.IP != "" && c.Raddr.Port != 0 {
		if remoteAddr, err := netip.ParseAddr(c.Raddr.IP); err == nil {
			remote := netip.AddrPortFrom(remoteAddr, uint16(c.Raddr.Port))
			info.Remote = &remote
		}
	}
	return info, true
}

func tcpStateFromGopsutil(status string) netmodel.TcpState {
	switch strings.ToUpper(status) {
	case "CLOSE", "CLOSED":
		return netmodel.TcpClosed
	case "LISTEN":
		return netmodel.TcpListen
	case "SYN_SENT":
		return netmodel.TcpSynSent
	case "SYN_RECV", "SYN_RECEIVED":
		return netmodel.TcpSynReceived
	case "ESTABLISHED":
		return netmodel.TcpEstablished
	case "FIN_WAIT1", "FIN_WAIT_1":
		return netmodel.TcpFinWait1
	case "FIN_WAIT2", "FIN_WAIT_2":
		return netmodel.TcpFinWait2
	case "CLOSE_WAIT":
		return netmodel.TcpCloseWait
	case "CLOSING":
		return netmodel.TcpClosing
	case "LAST_ACK":
		return netmodel.TcpLastAck
	case "TIME_WAIT":
		return netmodel.TcpTimeWait
	case "DELETE_TCB":
		return netmodel.TcpDeleteTcb
	default:
		return netmodel.TcpUnknown
	}
}

func lookupProcess(ctx context.Context, pid int32) (*netmodel.ProcessInfo, error) {
	proc, err := gprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	name, _ := proc.NameWithContext(ctx)
	exe, _ := proc.ExeWithContext(ctx)
	cmdline, _ := proc.CmdlineSliceWithContext(ctx)
	statuses, _ := proc.StatusWithContext(ctx)
	createdMs, _ := proc.CreateTimeWithContext(ctx)
	uids, _ := proc.UidsWithContext(ctx)
	gids, _ := proc.GidsWithContext(ctx)
	username, _ := proc.UsernameWithContext(ctx)

	status := ""
	if len(statuses) > 0 {
		status = statuses[0]
	}

	var user *netmodel.UserInfo
	if username != "" || len(uids) > 0 {
		user = &netmodel.UserInfo{UserName: username}
		if len(uids) > 0 {
			user.UserID = strconv.Itoa(int(uids[0]))
		}
		if len(gids) > 0 {
			user.GroupID = strconv.Itoa(int(gids[0]))
		}
	}

	started := time.UnixMilli(createdMs).UTC()
	return &netmodel.ProcessInfo{
		PID:         uint32(pid),
		Name:        name,
		ExePath:     exe,
		Cmdline:     cmdline,
		Status:      status,
		User:        user,
		StartTime:   started.Format(time.RFC3339),
		ElapsedSecs: uint64(time.Since(started).Seconds()),
	}, nil
}
