package netstat

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellrow/nustat/internal/netmodel"
)

func egressFrame(localPort, remotePort uint16, remote string, flags netmodel.TcpFlags, packetLen uint64) netmodel.ClassifiedFrame {
	proto := netmodel.TransportTCP
	return netmodel.ClassifiedFrame{
		Direction:  netmodel.DirectionEgress,
		LocalIP:    netip.MustParseAddr("10.0.0.2"),
		RemoteIP:   netip.MustParseAddr(remote),
		LocalPort:  localPort,
		RemotePort: remotePort,
		MAC:        "aa:aa:aa:aa:aa:aa",
		Protocol:   &proto,
		TCPFlags:   &flags,
		PacketLen:  packetLen,
	}
}

func ingressFrame(localPort, remotePort uint16, remote string, flags netmodel.TcpFlags, packetLen uint64) netmodel.ClassifiedFrame {
	proto := netmodel.TransportTCP
	return netmodel.ClassifiedFrame{
		Direction:  netmodel.DirectionIngress,
		LocalIP:    netip.MustParseAddr("10.0.0.2"),
		RemoteIP:   netip.MustParseAddr(remote),
		LocalPort:  localPort,
		RemotePort: remotePort,
		MAC:        "bb:bb:bb:bb:bb:bb",
		Protocol:   &proto,
		TCPFlags:   &flags,
		PacketLen:  packetLen,
	}
}

func TestNewStoreSeedsLoopbacks(t *testing.T) {
	s := New()
	set := s.LocalAddrSet()
	assert.True(t, set.Contains(netip.MustParseAddr("127.0.0.1")))
	assert.True(t, set.Contains(netip.MustParseAddr("::1")))
}

func TestUpdateConservesTrafficAcrossDirections(t *testing.T) {
	s := New()
	s.Update(egressFrame(1234, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 74))
	s.Update(ingressFrame(1234, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true, ACK: true}, 66))

	data := s.Snapshot()
	assert.EqualValues(t, 1, data.Traffic.PktOut)
	assert.EqualValues(t, 74, data.Traffic.BytesOut)
	assert.EqualValues(t, 1, data.Traffic.PktIn)
	assert.EqualValues(t, 66, data.Traffic.BytesIn)
}

// TestUpdateHostSumEqualsTotalTraffic is the host-sum invariant: the sum
// of every RemoteHostInfo.Traffic must equal the top-level traffic
// counter, since every Update touches exactly one host.
func TestUpdateHostSumEqualsTotalTraffic(t *testing.T) {
	s := New()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 100))
	s.Update(egressFrame(2222, 80, "1.1.1.1", netmodel.TcpFlags{SYN: true}, 50))
	s.Update(ingressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{ACK: true}, 60))

	data := s.Snapshot()
	var sumOut, sumIn uint64
	for _, h := range data.RemoteHosts {
		sumOut += h.Traffic.BytesOut
		sumIn += h.Traffic.BytesIn
	}
	assert.Equal(t, data.Traffic.BytesOut, sumOut)
	assert.Equal(t, data.Traffic.BytesIn, sumIn)
}

func TestSnapshotResetsStoreToFreshEpoch(t *testing.T) {
	s := New()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 100))
	first := s.Snapshot()
	assert.EqualValues(t, 100, first.Traffic.BytesOut)

	second := s.Snapshot()
	assert.True(t, second.Traffic.IsZero(), "second snapshot of an idle epoch must be zero")
	assert.Empty(t, second.RemoteHosts)
}

// TestMergeIsAssociative checks Merge(Merge(a,b),c) == Merge(a,Merge(b,c))
// on the additive traffic counters, the property spec.md requires of the
// merge operation across more than two epochs.
func TestMergeIsAssociative(t *testing.T) {
	s := New()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 10))
	a := s.Snapshot()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{ACK: true}, 20))
	b := s.Snapshot()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{FIN: true}, 30))
	c := s.Snapshot()

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	assert.Equal(t, left.Traffic, right.Traffic)
}

func TestAttachSocketsCreatesAndPrunesConnections(t *testing.T) {
	s := New()
	local := netip.MustParseAddr("10.0.0.2")
	remote := netip.MustParseAddr("93.184.216.34")
	proc := &netmodel.ProcessInfo{PID: 42, Name: "curl"}

	s.AttachSockets([]netmodel.SocketInfo{
		{
			Local:    netip.AddrPortFrom(local, 1111),
			Remote:   ptrAddrPort(netip.AddrPortFrom(remote, 443)),
			Protocol: netmodel.TransportTCP,
			State:    netmodel.TcpEstablished,
			Process:  proc,
		},
	})

	data := s.Snapshot()
	require.Len(t, data.Connections, 1)
	for _, conn := range data.Connections {
		assert.Equal(t, netmodel.TcpEstablished, conn.Status)
		require.NotNil(t, conn.Process)
		assert.EqualValues(t, 42, conn.Process.PID)
	}

	s.AttachSockets(nil)
	data = s.Snapshot()
	assert.Empty(t, data.Connections, "a socket no longer enumerated must be pruned")
}

func TestUpdateNeverCreatesConnectionKeysOnlyAnnotatesExisting(t *testing.T) {
	s := New()
	local := netip.MustParseAddr("10.0.0.2")
	remote := netip.MustParseAddr("93.184.216.34")

	// Packet path runs first, with no reconciler-created key yet.
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 74))
	data := s.Snapshot()
	assert.Empty(t, data.Connections, "the packet path must never create a ConnectionKey")

	s.AttachSockets([]netmodel.SocketInfo{
		{Local: netip.AddrPortFrom(local, 1111), Remote: ptrAddrPort(netip.AddrPortFrom(remote, 443)), Protocol: netmodel.TransportTCP, State: netmodel.TcpUnknown},
	})
	s.Update(ingressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true, ACK: true}, 66))
	data = s.Snapshot()
	require.Len(t, data.Connections, 1)
	for _, conn := range data.Connections {
		assert.Equal(t, netmodel.TcpSynReceived, conn.Status, "packet path may annotate an existing key's inferred status")
	}
}

func TestAttachDNSFillsHostnameOnlyWhenEmpty(t *testing.T) {
	s := New()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 10))
	s.AttachDNS(netip.MustParseAddr("93.184.216.34"), "example.com")
	s.AttachDNS(netip.MustParseAddr("93.184.216.34"), "should-not-overwrite.example")

	data := s.Snapshot()
	host := data.RemoteHosts[netip.MustParseAddr("93.184.216.34")]
	require.NotNil(t, host)
	assert.Equal(t, "example.com", host.Hostname)
}

func TestSetInterfaceResetsAndRecomputesLocalIPs(t *testing.T) {
	s := New()
	s.Update(egressFrame(1111, 443, "93.184.216.34", netmodel.TcpFlags{SYN: true}, 10))

	s.SetInterface(netmodel.Interface{
		Index: 2, Name: "eth1",
		IPv4: []netip.Addr{netip.MustParseAddr("192.168.1.5")},
	})

	set := s.LocalAddrSet()
	assert.True(t, set.Contains(netip.MustParseAddr("192.168.1.5")))
	assert.True(t, set.Contains(netip.MustParseAddr("127.0.0.1")))

	data := s.Snapshot()
	assert.True(t, data.Traffic.IsZero(), "binding a new interface must reset the epoch")
}

// TestConcurrentUpdatesDoNotRace exercises the fixed lock order under
// concurrent writers; run with -race to catch ordering violations.
func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Update(egressFrame(uint16(1000+n), 443, "93.184.216.34", netmodel.TcpFlags{ACK: true}, 10))
			}
		}(i)
	}
	wg.Wait()
	data := s.Snapshot()
	assert.EqualValues(t, 400, data.Traffic.PktOut)
}

func ptrAddrPort(ap netip.AddrPort) *netip.AddrPort { return &ap }
