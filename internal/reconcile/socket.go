// Package reconcile runs the periodic background sweeps that keep the
// store's authoritative, out-of-band data current: socket-to-process
// attribution, IP geolocation/ASN enrichment, and reverse-DNS hostnames.
// Each reconciler runs as a ticker-driven goroutine over a
// context.Context, stopping cleanly on cancellation.
package reconcile

import (
	"context"
	"time"

	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/netmodel"
	"github.com/shellrow/nustat/internal/netstat"
)

// SocketProbe enumerates live sockets, optionally filtered by family and
// protocol (spec.md §6).
type SocketProbe interface {
	ListSockets(ctx context.Context, families []netmodel.AddressFamily, protocols []netmodel.TransportProtocol) ([]netmodel.SocketInfo, error)
}

// SocketReconciler periodically re-enumerates OS sockets and replaces
// the store's authoritative connection table (spec.md §4.4). It is the
// only caller of Store.AttachSockets; the capture path never creates a
// ConnectionKey (spec.md §9).
type SocketReconciler struct {
	probe    SocketProbe
	store    *netstat.Store
	interval time.Duration
}

func NewSocketReconciler(probe SocketProbe, store *netstat.Store, interval time.Duration) *SocketReconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SocketReconciler{probe: probe, store: store, interval: interval}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (r *SocketReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *SocketReconciler) sweep(ctx context.Context) {
	sockets, err := r.probe.ListSockets(ctx, nil, nil)
	if err != nil {
		applog.Warn("reconcile: socket sweep failed: %v", err)
		return
	}
	r.store.AttachSockets(sockets)
	applog.Debug("reconcile: socket sweep attached %d sockets", len(sockets))
}
