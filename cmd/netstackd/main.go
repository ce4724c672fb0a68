// netstackd daemon -- coalescing heap allocator and Ethernet/ARP/IPv4/
// TCP/UDP stack (spec.md), reachable over a UDP tunnel transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/netstackd/internal/config"
	"github.com/dantte-lp/netstackd/internal/heap"
	netstackmetrics "github.com/dantte-lp/netstackd/internal/metrics"
	"github.com/dantte-lp/netstackd/internal/nictunnel"
	"github.com/dantte-lp/netstackd/internal/stack"
	"github.com/dantte-lp/netstackd/internal/statsfile"
	appversion "github.com/dantte-lp/netstackd/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("netstackd starting",
		slog.String("version", appversion.Version),
		slog.String("iface_ipv4", cfg.Iface.IPv4),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := netstackmetrics.NewCollector(reg)

	h, s, err := buildStack(cfg, logger)
	if err != nil {
		logger.Error("failed to build network stack", slog.String("error", err.Error()))
		return 1
	}

	tunnel, err := buildTunnel(cfg.Tunnel, logger)
	if err != nil {
		logger.Error("failed to start NIC tunnel", slog.String("error", err.Error()))
		return 1
	}
	s.RegisterTransmitCallback(tunnel.Send)

	if err := runServers(cfg, h, s, tunnel, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("netstackd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("netstackd stopped")
	return 0
}

// buildStack parses the interface configuration and constructs the heap
// arena and the wired Stack, mirroring cmd/gobfd/main.go's config->manager
// construction step.
func buildStack(cfg *config.Config, logger *slog.Logger) (*heap.Heap, *stack.Stack, error) {
	mac, err := cfg.Iface.ParsedMAC()
	if err != nil {
		return nil, nil, fmt.Errorf("parse iface.mac: %w", err)
	}
	ip, err := cfg.Iface.ParsedIPv4()
	if err != nil {
		return nil, nil, fmt.Errorf("parse iface.ipv4: %w", err)
	}
	mask, err := cfg.Iface.ParsedMask()
	if err != nil {
		return nil, nil, fmt.Errorf("parse iface.mask: %w", err)
	}
	gw, err := cfg.Iface.ParsedGateway()
	if err != nil {
		return nil, nil, fmt.Errorf("parse iface.gateway: %w", err)
	}

	h := heap.New()
	if err := h.Initialize(make([]byte, cfg.Heap.SizeBytes)); err != nil {
		return nil, nil, fmt.Errorf("initialize heap: %w", err)
	}

	s := stack.New(stack.Config{MAC: mac, IPv4: ip, Mask: mask, Gateway: gw}, logger)
	return h, s, nil
}

// buildTunnel dials the NIC tunnel transport described by cfg.
func buildTunnel(cfg config.TunnelConfig, logger *slog.Logger) (*nictunnel.Conn, error) {
	listenAddr, err := netip.ParseAddrPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel.listen_addr %q: %w", cfg.ListenAddr, err)
	}
	peerAddr, err := netip.ParseAddrPort(cfg.PeerAddr)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel.peer_addr %q: %w", cfg.PeerAddr, err)
	}

	return nictunnel.Dial(listenAddr, peerAddr, cfg.VNI, logger)
}

// runServers sets up and runs the NIC tunnel, the metrics HTTP server, and
// the stats scrape loop using an errgroup with signal-aware context for
// graceful shutdown.
func runServers(
	cfg *config.Config,
	h *heap.Heap,
	s *stack.Stack,
	tunnel *nictunnel.Conn,
	collector *netstackmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		logger.Info("NIC tunnel listening",
			slog.String("listen_addr", cfg.Tunnel.ListenAddr),
			slog.String("peer_addr", cfg.Tunnel.PeerAddr),
		)
		return tunnel.Serve(gCtx, s.ReceiveFromNIC)
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Stats.Path), 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}
	g.Go(func() error {
		return runStatsLoop(gCtx, cfg.Stats, h, s, collector, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Stats scrape loop
// -------------------------------------------------------------------------

// runStatsLoop periodically samples the heap and stack into collector's
// Prometheus gauges and into the local stats file netstackctl reads.
func runStatsLoop(
	ctx context.Context,
	cfg config.StatsConfig,
	h *heap.Heap,
	s *stack.Stack,
	collector *netstackmetrics.Collector,
	logger *slog.Logger,
) error {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scrapeOnce(cfg, h, s, collector, logger)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scrapeOnce(cfg, h, s, collector, logger)
		}
	}
}

// scrapeOnce takes one reading of heap and stack occupancy.
func scrapeOnce(
	cfg config.StatsConfig,
	h *heap.Heap,
	s *stack.Stack,
	collector *netstackmetrics.Collector,
	logger *slog.Logger,
) {
	hstats := h.Stats()

	freeBlocks := 0
	for _, b := range h.DebugDump() {
		if !b.Used {
			freeBlocks++
		}
	}

	collector.SetHeapUsedBytes(hstats.UsedSize)
	collector.SetHeapFreeBlocks(freeBlocks)
	collector.SetARPCacheEntries(s.ARPCacheLen())
	collector.SetPendingARPQueueLength(s.PendingQueueLen())
	collector.SetTCPConnections(s.TCPConnectionCount())
	collector.SetUDPBindings(s.UDPBindingCount())

	snap := statsfile.Snapshot{
		HeapTotalBytes:        hstats.TotalSize,
		HeapUsedBytes:         hstats.UsedSize,
		HeapFreeBytes:         hstats.FreeSize,
		HeapFreeBlocks:        freeBlocks,
		HeapAllocationCount:   hstats.AllocationCount,
		ARPCacheEntries:       s.ARPCacheLen(),
		PendingARPQueueLength: s.PendingQueueLen(),
		TCPConnections:        s.TCPConnectionCount(),
		UDPBindings:           s.UDPBindingCount(),
	}

	if err := statsfile.Write(cfg.Path, snap); err != nil {
		logger.Warn("failed to write stats file", slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads the dynamic log
// level from a freshly read configuration file. Blocks until ctx is
// cancelled.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path and updates
// the dynamic log level. Errors during reload are logged but do not stop
// the daemon -- the previous log level remains in effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown shuts down the metrics HTTP server within
// shutdownTimeout. The NIC tunnel closes itself when ctx is cancelled
// (nictunnel.Conn.Serve watches ctx.Done directly).
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
