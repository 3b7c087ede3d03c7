// Package pcap implements capture.FrameSourceFactory over
// github.com/google/gopacket and its libpcap binding, the capture
// library the wider example pack (DataDog-datadog-agent's network
// tracer) depends on. It is the concrete adapter plugged in at the
// boundary spec.md §6 calls FrameSource/FrameSourceFactory; the core
// packages never import gopacket directly.
package pcap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/shellrow/nustat/internal/capture"
	"github.com/shellrow/nustat/internal/netmodel"
)

// Factory opens a live pcap handle per interface, with BPF/snaplen
// settings fixed at construction time.
type Factory struct {
	SnapLen int32
	Promisc bool
	Timeout time.Duration
	BPF     string
}

// NewFactory returns a Factory with conservative defaults: promiscuous
// off, a short read timeout so the capture goroutine can still observe
// context cancellation between packets.
func NewFactory() *Factory {
	return &Factory{SnapLen: 65535, Promisc: false, Timeout: time.Second}
}

func (f *Factory) Open(ctx context.Context, iface netmodel.Interface) (capture.FrameSource, error) {
	handle, err := pcap.OpenLive(iface.Name, f.SnapLen, f.Promisc, f.Timeout)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %q: %w", iface.Name, err)
	}
	if f.BPF != "" {
		if err := handle.SetBPFFilter(f.BPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("pcap: bpf filter: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	src := &Source{
		handle: handle,
		out:    make(chan netmodel.Frame, 4096),
		ctx:    ctx,
		cancel: cancel,
		iface:  iface,
	}
	go src.run()
	return src, nil
}

// Source adapts one pcap.Handle's packet stream to a netmodel.Frame
// channel.
type Source struct {
	handle *pcap.Handle
	out    chan netmodel.Frame
	ctx    context.Context
	cancel context.CancelFunc
	iface  netmodel.Interface
}

func (s *Source) Frames() <-chan netmodel.Frame { return s.out }

func (s *Source) Close() error {
	s.cancel()
	s.handle.Close()
	return nil
}

func (s *Source) run() {
	defer close(s.out)
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	packets := packetSource.Packets()
	for {
		select {
		case <-s.ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			frame, ok := decode(pkt, s.iface)
			if !ok {
				continue
			}
			select {
			case s.out <- frame:
			case <-s.ctx.Done():
				return
			default:
				// capture outruns the consumer; drop rather than block
				// the pcap read loop.
			}
		}
	}
}

// decode translates a gopacket.Packet into netmodel.Frame, generalizing
// original_source's PacketFrame::from_xenet_frame layer-by-layer
// extraction from xenet's Frame to gopacket's layer accessors.
func decode(pkt gopacket.Packet, iface netmodel.Interface) (netmodel.Frame, bool) {
	frame := netmodel.Frame{
		IfIndex:   iface.Index,
		IfName:    iface.Name,
		PacketLen: uint64(len(pkt.Data())),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if eth := pkt.Layer(layers.LayerTypeEthernet); eth != nil {
		e := eth.(*layers.Ethernet)
		frame.Datalink = &netmodel.DatalinkLayer{
			SrcMAC: e.SrcMAC.String(),
			DstMAC: e.DstMAC.String(),
		}
	}
	if arp := pkt.Layer(layers.LayerTypeARP); arp != nil {
		if frame.Datalink == nil {
			frame.Datalink = &netmodel.DatalinkLayer{}
		}
		frame.Datalink.IsARP = true
	}

	if ip4 := pkt.Layer(layers.LayerTypeIPv4); ip4 != nil {
		v4 := ip4.(*layers.IPv4)
		src, srcOK := addrFromIP(v4.SrcIP)
		dst, dstOK := addrFromIP(v4.DstIP)
		if srcOK && dstOK {
			frame.IP = &netmodel.IPLayer{Src: src, Dst: dst, Protocol: protocolFor(v4.Protocol)}
		}
	} else if ip6 := pkt.Layer(layers.LayerTypeIPv6); ip6 != nil {
		v6 := ip6.(*layers.IPv6)
		src, srcOK := addrFromIP(v6.SrcIP)
		dst, dstOK := addrFromIP(v6.DstIP)
		if srcOK && dstOK {
			frame.IP = &netmodel.IPLayer{Src: src, Dst: dst, Protocol: protocolFor(v6.NextHeader)}
		}
	}
	if tcp := pkt.Layer(layers.LayerTypeTCP); tcp != nil {
		t := tcp.(*layers.TCP)
		frame.Transport = &netmodel.TransportLayer{
			SrcPort: uint16(t.SrcPort),
			DstPort: uint16(t.DstPort),
			Proto:   netmodel.TransportTCP,
			HasTCP:  true,
			Flags: netmodel.TcpFlags{
				SYN: t.SYN, ACK: t.ACK, FIN: t.FIN, RST: t.RST, PSH: t.PSH, URG: t.URG,
			},
		}
	} else if udp := pkt.Layer(layers.LayerTypeUDP); udp != nil {
		u := udp.(*layers.UDP)
		frame.Transport = &netmodel.TransportLayer{
			SrcPort: uint16(u.SrcPort),
			DstPort: uint16(u.DstPort),
			Proto:   netmodel.TransportUDP,
		}
	}

	return frame, true
}
