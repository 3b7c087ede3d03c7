// Command nustat is the telemetry engine's CLI entrypoint, wiring the
// store, capture workers, reconcilers, config, and metrics exposition
// together through a cobra root command with a db-update subcommand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shellrow/nustat/internal/appconfig"
	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/capture"
	"github.com/shellrow/nustat/internal/capture/pcap"
	"github.com/shellrow/nustat/internal/dbupdate"
	"github.com/shellrow/nustat/internal/metrics"
	"github.com/shellrow/nustat/internal/netif"
	"github.com/shellrow/nustat/internal/netstat"
	"github.com/shellrow/nustat/internal/osprobe"
	"github.com/shellrow/nustat/internal/reconcile"
)

var (
	tickRateMillis   int
	enhancedGraphics bool
	ifaceFlag        string
	listenAddr       string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nustat",
		Short: "Host-local network telemetry engine",
		RunE:  runServe,
	}
	root.PersistentFlags().IntVar(&tickRateMillis, "tick_rate", 0, "display/metrics refresh interval in milliseconds (overrides config)")
	root.PersistentFlags().BoolVar(&enhancedGraphics, "enhanced_graphics", false, "enable enhanced terminal graphics (display-layer flag, carried for config parity)")
	root.PersistentFlags().StringVar(&ifaceFlag, "interface", "", "capture interface name (overrides config, auto-detected if empty)")
	root.PersistentFlags().StringVar(&listenAddr, "listen", ":9655", "Prometheus exposition listen address")
	root.AddCommand(newUpdateCmd())
	return root
}

func newUpdateCmd() *cobra.Command {
	var dbFlag bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh bundled IP/country/ASN/service databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dbFlag {
				return nil
			}
			return runUpdateDB(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&dbFlag, "db", false, "download the latest bundled databases from GitHub")
	return cmd
}

func runUpdateDB(ctx context.Context) error {
	dir, err := appconfig.EnsureDir()
	if err != nil {
		return err
	}
	sha, err := dbupdate.LatestCommitSHA(ctx)
	if err != nil {
		return fmt.Errorf("resolve latest commit: %w", err)
	}
	applog.Info("downloading bundled databases at commit %s", sha)
	for progress := range dbupdate.DownloadAll(ctx, sha, dir) {
		if progress.Err != nil {
			applog.Warn("download %s failed: %v", progress.File, progress.Err)
			continue
		}
		applog.Info("downloaded %s (%d bytes)", progress.File, progress.Bytes)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := appconfig.EnsureDir()
	if err != nil {
		applog.Error("config directory unavailable: %v", err)
		os.Exit(1)
	}

	cfg, err := appconfig.Load(filepath.Join(dir, "nustat-config.toml"))
	if err != nil {
		return err
	}
	if ifaceFlag != "" {
		cfg.Network.Interface = ifaceFlag
	}
	if tickRateMillis > 0 {
		cfg.Display.TickRateMillis = tickRateMillis
	}
	if enhancedGraphics {
		cfg.Display.EnhancedGraphics = true
	}
	applog.SetLevel(levelFromString(cfg.Logging.Level))
	if cfg.Logging.FilePath != "" {
		logFile, err := os.OpenFile(cfg.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Logging.FilePath, err)
		}
		defer logFile.Close()
		applog.SetOutput(logFile)
	}

	if cfg.Network.Interface == "" {
		names, err := netif.ListNames()
		if err != nil || len(names) == 0 {
			return fmt.Errorf("no capture interface configured and auto-detection failed: %w", err)
		}
		cfg.Network.Interface = names[0]
	}

	iface, err := netif.Resolve(cfg.Network.Interface)
	if err != nil {
		return fmt.Errorf("resolve interface %q: %w", cfg.Network.Interface, err)
	}

	store := netstat.New()
	store.SetInterface(iface)
	store.LoadIPDBFromFiles(
		filepath.Join(dir, "ipv4.bin"),
		filepath.Join(dir, "ipv6.bin"),
		filepath.Join(dir, "country.bin"),
		filepath.Join(dir, "as.bin"),
		filepath.Join(dir, "tcp-service.bin"),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	worker := capture.NewWorker(pcap.NewFactory(), store)
	if err := worker.Start(ctx, iface); err != nil {
		return fmt.Errorf("start capture on %q: %w", iface.Name, err)
	}
	defer worker.Stop()

	socketRecon := reconcile.NewSocketReconciler(osprobe.New(), store, secs(cfg.Network.SocketInterval))
	go socketRecon.Run(ctx)

	ipinfoRecon := reconcile.NewIPInfoReconciler(store, secs(cfg.Network.IPInfoInterval))
	go ipinfoRecon.Run(ctx)

	if !cfg.Network.DisableReverseDNS {
		dnsRecon := reconcile.NewDNSReconciler(store, cfg.Network.DNSResolver, secs(cfg.Network.DNSInterval))
		go dnsRecon.Run(ctx)
	}

	cache := netstat.NewCache(store)
	go cache.Run(ctx, time.Duration(cfg.Display.TickRateMillis)*time.Millisecond)

	exporter := metrics.NewExporter(cache)
	registry := prometheus.NewRegistry()
	registry.MustRegister(exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		applog.Info("metrics listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Error("metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	return nil
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func levelFromString(s string) applog.Level {
	switch s {
	case "debug":
		return applog.LevelDebug
	case "info":
		return applog.LevelInfo
	case "error":
		return applog.LevelError
	default:
		return applog.LevelWarn
	}
}
