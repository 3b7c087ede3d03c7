// Package metrics exposes the telemetry store's snapshot projections as
// a prometheus.Collector. Collect re-derives every gauge from the
// latest Data each scrape; nothing here keeps history, so it carries no
// state beyond a reference to the cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shellrow/nustat/internal/netstat"
)

// Exporter implements prometheus.Collector by reading the running total
// a *netstat.Cache maintains. It never calls Store.Snapshot itself:
// Snapshot's reset side effect means only the Cache's own tick loop may
// drive it, so Collect reads whatever the Cache last merged instead of
// racing other Snapshot callers.
type Exporter struct {
	cache *netstat.Cache

	bytesIn        *prometheus.Desc
	bytesOut       *prometheus.Desc
	remoteHosts    *prometheus.Desc
	connections    *prometheus.Desc
	establishedTCP *prometheus.Desc
	hostBytes      *prometheus.Desc
}

func NewExporter(cache *netstat.Cache) *Exporter {
	return &Exporter{
		cache:          cache,
		bytesIn:        prometheus.NewDesc("nustat_bytes_in_total", "Bytes received since the cache started.", nil, nil),
		bytesOut:       prometheus.NewDesc("nustat_bytes_out_total", "Bytes sent since the cache started.", nil, nil),
		remoteHosts:    prometheus.NewDesc("nustat_remote_hosts", "Distinct remote hosts observed since the cache started.", nil, nil),
		connections:    prometheus.NewDesc("nustat_connections", "Connections tracked since the cache started.", nil, nil),
		establishedTCP: prometheus.NewDesc("nustat_established_tcp_connections", "TCP connections currently ESTABLISHED.", nil, nil),
		hostBytes:      prometheus.NewDesc("nustat_top_host_bytes", "Total bytes for the busiest remote hosts.", []string{"ip", "country_code"}, nil),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.bytesIn
	ch <- e.bytesOut
	ch <- e.remoteHosts
	ch <- e.connections
	ch <- e.establishedTCP
	ch <- e.hostBytes
}

// Collect reads the cache's latest merged total; it never triggers a
// store reset itself.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	data := e.cache.Latest()
	ov := data.Overview()

	ch <- prometheus.MustNewConstMetric(e.bytesIn, prometheus.CounterValue, float64(ov.Traffic.BytesIn))
	ch <- prometheus.MustNewConstMetric(e.bytesOut, prometheus.CounterValue, float64(ov.Traffic.BytesOut))
	ch <- prometheus.MustNewConstMetric(e.remoteHosts, prometheus.GaugeValue, float64(ov.RemoteHosts))
	ch <- prometheus.MustNewConstMetric(e.connections, prometheus.GaugeValue, float64(ov.Connections))
	ch <- prometheus.MustNewConstMetric(e.establishedTCP, prometheus.GaugeValue, float64(ov.EstablishedTCP))

	for _, host := range data.TopRemoteHosts(10) {
		ch <- prometheus.MustNewConstMetric(e.hostBytes, prometheus.GaugeValue, float64(host.Traffic.Bytes()), host.IP.String(), host.CountryCode)
	}
}
