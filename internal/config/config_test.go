package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/netstackd/internal/config"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Heap.SizeBytes != 1<<20 {
		t.Errorf("Heap.SizeBytes = %d, want %d", cfg.Heap.SizeBytes, 1<<20)
	}

	if cfg.Iface.MAC != "02:00:00:00:00:01" {
		t.Errorf("Iface.MAC = %q, want %q", cfg.Iface.MAC, "02:00:00:00:00:01")
	}

	if cfg.Iface.IPv4 != "10.0.0.1" {
		t.Errorf("Iface.IPv4 = %q, want %q", cfg.Iface.IPv4, "10.0.0.1")
	}

	if cfg.Tunnel.ListenAddr != "0.0.0.0:4789" {
		t.Errorf("Tunnel.ListenAddr = %q, want %q", cfg.Tunnel.ListenAddr, "0.0.0.0:4789")
	}

	if cfg.Tunnel.VNI != 1 {
		t.Errorf("Tunnel.VNI = %d, want 1", cfg.Tunnel.VNI)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Stats.IntervalSeconds != 5 {
		t.Errorf("Stats.IntervalSeconds = %d, want 5", cfg.Stats.IntervalSeconds)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
heap:
  size_bytes: 2097152
iface:
  mac: "02:00:00:00:00:02"
  ipv4: "192.168.1.5"
  mask: "255.255.255.0"
  gateway: "192.168.1.1"
tunnel:
  listen_addr: "0.0.0.0:5000"
  peer_addr: "192.168.1.2:5000"
  vni: 7
metrics:
  addr: ":9200"
  path: "/custom-metrics"
stats:
  path: "/tmp/netstackd-stats.json"
  interval_seconds: 10
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Heap.SizeBytes != 2097152 {
		t.Errorf("Heap.SizeBytes = %d, want %d", cfg.Heap.SizeBytes, 2097152)
	}

	if cfg.Iface.IPv4 != "192.168.1.5" {
		t.Errorf("Iface.IPv4 = %q, want %q", cfg.Iface.IPv4, "192.168.1.5")
	}

	if cfg.Tunnel.ListenAddr != "0.0.0.0:5000" {
		t.Errorf("Tunnel.ListenAddr = %q, want %q", cfg.Tunnel.ListenAddr, "0.0.0.0:5000")
	}

	if cfg.Tunnel.VNI != 7 {
		t.Errorf("Tunnel.VNI = %d, want 7", cfg.Tunnel.VNI)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Stats.Path != "/tmp/netstackd-stats.json" {
		t.Errorf("Stats.Path = %q, want %q", cfg.Stats.Path, "/tmp/netstackd-stats.json")
	}

	if cfg.Stats.IntervalSeconds != 10 {
		t.Errorf("Stats.IntervalSeconds = %d, want 10", cfg.Stats.IntervalSeconds)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override iface.ipv4 and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
iface:
  ipv4: "172.16.0.9"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Iface.IPv4 != "172.16.0.9" {
		t.Errorf("Iface.IPv4 = %q, want %q", cfg.Iface.IPv4, "172.16.0.9")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Heap.SizeBytes != 1<<20 {
		t.Errorf("Heap.SizeBytes = %d, want default %d", cfg.Heap.SizeBytes, 1<<20)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "zero heap size",
			modify: func(cfg *config.Config) {
				cfg.Heap.SizeBytes = 0
			},
			wantErr: config.ErrInvalidHeapSize,
		},
		{
			name: "negative heap size",
			modify: func(cfg *config.Config) {
				cfg.Heap.SizeBytes = -1
			},
			wantErr: config.ErrInvalidHeapSize,
		},
		{
			name: "malformed MAC",
			modify: func(cfg *config.Config) {
				cfg.Iface.MAC = "not-a-mac"
			},
			wantErr: config.ErrInvalidMAC,
		},
		{
			name: "short MAC",
			modify: func(cfg *config.Config) {
				cfg.Iface.MAC = "02:00:00"
			},
			wantErr: config.ErrInvalidMAC,
		},
		{
			name: "malformed ipv4",
			modify: func(cfg *config.Config) {
				cfg.Iface.IPv4 = "not-an-ip"
			},
			wantErr: config.ErrInvalidIPv4,
		},
		{
			name: "malformed mask",
			modify: func(cfg *config.Config) {
				cfg.Iface.Mask = "255.255.255"
			},
			wantErr: config.ErrInvalidIPv4,
		},
		{
			name: "malformed gateway",
			modify: func(cfg *config.Config) {
				cfg.Iface.Gateway = "256.0.0.1.5"
			},
			wantErr: config.ErrInvalidIPv4,
		},
		{
			name: "empty metrics addr",
			modify: func(cfg *config.Config) {
				cfg.Metrics.Addr = ""
			},
			wantErr: config.ErrEmptyMetricsAddr,
		},
		{
			name: "malformed tunnel listen addr",
			modify: func(cfg *config.Config) {
				cfg.Tunnel.ListenAddr = "not-a-host-port"
			},
			wantErr: config.ErrInvalidTunnelAddr,
		},
		{
			name: "malformed tunnel peer addr",
			modify: func(cfg *config.Config) {
				cfg.Tunnel.PeerAddr = "also-not-valid"
			},
			wantErr: config.ErrInvalidTunnelAddr,
		},
		{
			name: "zero stats interval",
			modify: func(cfg *config.Config) {
				cfg.Stats.IntervalSeconds = 0
			},
			wantErr: config.ErrInvalidStatsInterval,
		},
		{
			name: "empty stats path",
			modify: func(cfg *config.Config) {
				cfg.Stats.Path = ""
			},
			wantErr: config.ErrEmptyStatsPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIfaceConfigParsedFields(t *testing.T) {
	t.Parallel()

	ic := config.IfaceConfig{
		MAC:     "02:00:00:00:00:01",
		IPv4:    "10.0.0.1",
		Mask:    "255.255.255.0",
		Gateway: "10.0.0.254",
	}

	mac, err := ic.ParsedMAC()
	if err != nil {
		t.Fatalf("ParsedMAC: %v", err)
	}
	if want := (netutil.MAC{0x02, 0, 0, 0, 0, 1}); mac != want {
		t.Errorf("ParsedMAC() = %v, want %v", mac, want)
	}

	ip, err := ic.ParsedIPv4()
	if err != nil {
		t.Fatalf("ParsedIPv4: %v", err)
	}
	if want := (netutil.IPv4{10, 0, 0, 1}); ip != want {
		t.Errorf("ParsedIPv4() = %v, want %v", ip, want)
	}

	mask, err := ic.ParsedMask()
	if err != nil {
		t.Fatalf("ParsedMask: %v", err)
	}
	if want := (netutil.IPv4{255, 255, 255, 0}); mask != want {
		t.Errorf("ParsedMask() = %v, want %v", mask, want)
	}

	gw, err := ic.ParsedGateway()
	if err != nil {
		t.Fatalf("ParsedGateway: %v", err)
	}
	if want := (netutil.IPv4{10, 0, 0, 254}); gw != want {
		t.Errorf("ParsedGateway() = %v, want %v", gw, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
iface:
  ipv4: "10.0.0.1"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NETSTACKD_IFACE_IPV4", "10.0.0.9")
	t.Setenv("NETSTACKD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Iface.IPv4 != "10.0.0.9" {
		t.Errorf("Iface.IPv4 = %q, want %q (from env)", cfg.Iface.IPv4, "10.0.0.9")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NETSTACKD_METRICS_ADDR", ":9200")
	t.Setenv("NETSTACKD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "netstackd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
