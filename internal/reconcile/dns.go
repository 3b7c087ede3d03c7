package reconcile

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/netstat"
)

// DNSReconciler resolves reverse-DNS hostnames for remote hosts via
// github.com/miekg/dns, SPEC_FULL.md's replacement for a feature the
// distilled spec dropped but original_source's net/host.rs field
// (host_name) and the wider example pack's DNS dependency both support
// (DataDog-datadog-agent and telepresenceio-telepresence both vendor
// miekg/dns for exactly this kind of lookup). The resolver address is the
// configured one when given; otherwise it comes from the system's
// /etc/resolv.conf via dns.ClientConfigFromFile, and only when that file
// is unreadable or lists no server does it fall back to 1.1.1.1:53.
type DNSReconciler struct {
	store    *netstat.Store
	resolver string // "host:port" of the recursive resolver to query
	interval time.Duration
	timeout  time.Duration
}

func NewDNSReconciler(store *netstat.Store, resolver string, interval time.Duration) *DNSReconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if resolver == "" {
		resolver = resolverFromSystemConfig()
	}
	return &DNSReconciler{store: store, resolver: resolver, interval: interval, timeout: 2 * time.Second}
}

// resolverFromSystemConfig reads /etc/resolv.conf the way a DNS-capable
// pack component would (DataDog-datadog-agent and
// telepresenceio-telepresence both parse it via miekg/dns rather than
// going through the stdlib resolver), falling back to a well-known
// public resolver when the file is absent or unreadable (e.g. non-Linux
// test environments).
func resolverFromSystemConfig() string {
	const fallback = "1.1.1.1:53"
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return fallback
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

func (r *DNSReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *DNSReconciler) sweep() {
	targets := r.store.HostsMissingHostname()
	for _, ip := range targets {
		name, ok := r.reverseLookup(ip)
		if !ok {
			continue
		}
		r.store.AttachDNS(ip, name)
	}
	if len(targets) > 0 {
		applog.Debug("reconcile: dns sweep attempted %d reverse lookups", len(targets))
	}
}

func (r *DNSReconciler) reverseLookup(ip netip.Addr) (string, bool) {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: r.timeout}
	resp, _, err := client.Exchange(msg, r.resolver)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return "", false
	}
	for _, ans := range resp.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			return trimTrailingDot(ptr.Ptr), true
		}
	}
	return "", false
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}
