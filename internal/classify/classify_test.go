package classify

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellrow/nustat/internal/netmodel"
)

func localSet(addrs ...string) LocalAddrSet {
	parsed := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		parsed = append(parsed, netip.MustParseAddr(a))
	}
	return NewLocalAddrSet(parsed)
}

func TestClassifyEgressTCPSyn(t *testing.T) {
	local := localSet("10.0.0.2")
	frame := netmodel.Frame{
		IP: &netmodel.IPLayer{
			Src:      netip.MustParseAddr("10.0.0.2"),
			Dst:      netip.MustParseAddr("93.184.216.34"),
			Protocol: netmodel.ProtocolTCP,
		},
		Transport: &netmodel.TransportLayer{
			SrcPort: 54321, DstPort: 443,
			Proto: netmodel.TransportTCP, HasTCP: true,
			Flags: netmodel.TcpFlags{SYN: true},
		},
		PacketLen: 74,
	}

	cf, ok := Classify(frame, local)
	require.True(t, ok)
	assert.Equal(t, netmodel.DirectionEgress, cf.Direction)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), cf.LocalIP)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), cf.RemoteIP)
	assert.EqualValues(t, 54321, cf.LocalPort)
	assert.EqualValues(t, 443, cf.RemotePort)
	require.NotNil(t, cf.Protocol)
	assert.Equal(t, netmodel.TransportTCP, *cf.Protocol)
	require.NotNil(t, cf.TCPFlags)
	assert.True(t, cf.TCPFlags.SYN)
}

func TestClassifyIngressAck(t *testing.T) {
	local := localSet("10.0.0.2")
	frame := netmodel.Frame{
		IP: &netmodel.IPLayer{
			Src: netip.MustParseAddr("93.184.216.34"),
			Dst: netip.MustParseAddr("10.0.0.2"),
		},
		Transport: &netmodel.TransportLayer{
			SrcPort: 443, DstPort: 54321,
			Proto: netmodel.TransportTCP, HasTCP: true,
			Flags: netmodel.TcpFlags{ACK: true},
		},
		PacketLen: 66,
	}

	cf, ok := Classify(frame, local)
	require.True(t, ok)
	assert.Equal(t, netmodel.DirectionIngress, cf.Direction)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), cf.LocalIP)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), cf.RemoteIP)
	assert.EqualValues(t, 54321, cf.LocalPort)
	assert.EqualValues(t, 443, cf.RemotePort)
}

func TestClassifyDropsWhenNeitherEndpointIsLocal(t *testing.T) {
	local := localSet("10.0.0.2")
	frame := netmodel.Frame{
		IP: &netmodel.IPLayer{
			Src: netip.MustParseAddr("1.1.1.1"),
			Dst: netip.MustParseAddr("2.2.2.2"),
		},
	}
	_, ok := Classify(frame, local)
	assert.False(t, ok)
}

func TestClassifyDropsWhenBothEndpointsAreLocal(t *testing.T) {
	local := localSet("10.0.0.2", "10.0.0.3")
	frame := netmodel.Frame{
		IP: &netmodel.IPLayer{
			Src: netip.MustParseAddr("10.0.0.2"),
			Dst: netip.MustParseAddr("10.0.0.3"),
		},
	}
	// A frame between two local addresses has no remote peer, so it is
	// dropped just like a frame with neither endpoint local.
	_, ok := Classify(frame, local)
	assert.False(t, ok)
}

func TestClassifyDropsWhenNoIPLayer(t *testing.T) {
	_, ok := Classify(netmodel.Frame{}, localSet("10.0.0.2"))
	assert.False(t, ok)
}

func TestClassifyMACIsPeerMAC(t *testing.T) {
	local := localSet("10.0.0.2")
	frame := netmodel.Frame{
		IP: &netmodel.IPLayer{
			Src: netip.MustParseAddr("10.0.0.2"),
			Dst: netip.MustParseAddr("93.184.216.34"),
		},
		Datalink: &netmodel.DatalinkLayer{
			SrcMAC: "aa:aa:aa:aa:aa:aa",
			DstMAC: "bb:bb:bb:bb:bb:bb",
		},
	}
	cf, ok := Classify(frame, local)
	require.True(t, ok)
	assert.Equal(t, "bb:bb:bb:bb:bb:bb", cf.MAC, "egress peer MAC is the destination MAC")
}
