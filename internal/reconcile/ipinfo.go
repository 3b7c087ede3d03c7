package reconcile

import (
	"context"
	"time"

	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/netstat"
)

// IPInfoReconciler fills in country/ASN enrichment for remote hosts the
// inline Update lookup missed (e.g. a host first seen before the IPDB
// finished loading). Grounded on original_source's
// ipinfo.rs::start_ipinfo_update's "find unresolved, then backfill" loop.
type IPInfoReconciler struct {
	store    *netstat.Store
	interval time.Duration
}

func NewIPInfoReconciler(store *netstat.Store, interval time.Duration) *IPInfoReconciler {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	return &IPInfoReconciler{store: store, interval: interval}
}

func (r *IPInfoReconciler) Run(ctx context.Context) {
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

func (r *IPInfoReconciler) sweep() {
	targets := r.store.HostsMissingCountry()
	if len(targets) == 0 {
		return
	}
	r.store.BackfillEnrichment(targets)
	applog.Debug("reconcile: ipinfo sweep resolved against %d candidate hosts", len(targets))
}
