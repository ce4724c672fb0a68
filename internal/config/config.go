// Package config manages netstackd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/netstackd/internal/netutil"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete netstackd configuration.
type Config struct {
	Heap    HeapConfig    `koanf:"heap"`
	Iface   IfaceConfig   `koanf:"iface"`
	Tunnel  TunnelConfig  `koanf:"tunnel"`
	Metrics MetricsConfig `koanf:"metrics"`
	Stats   StatsConfig   `koanf:"stats"`
	Log     LogConfig     `koanf:"log"`
}

// TunnelConfig addresses the internal/nictunnel UDP socket that carries
// this stack's Ethernet frames to and from its peer.
type TunnelConfig struct {
	// ListenAddr is the local host:port the tunnel socket binds to.
	ListenAddr string `koanf:"listen_addr"`
	// PeerAddr is the remote host:port frames are sent to.
	PeerAddr string `koanf:"peer_addr"`
	// VNI tags this tunnel so datagrams from unrelated tunnels sharing a
	// port are ignored (see internal/nictunnel).
	VNI uint32 `koanf:"vni"`
}

// HeapConfig sizes the backing arena handed to internal/heap's Initialize.
type HeapConfig struct {
	// SizeBytes is the initial arena size in bytes.
	SizeBytes int `koanf:"size_bytes"`
}

// IfaceConfig addresses the single interface the stack is bound to
// (spec.md §5 "layer configuration (MAC/IPv4/mask/gateway)").
type IfaceConfig struct {
	// MAC is the interface's hardware address, e.g. "02:00:00:00:00:01".
	MAC string `koanf:"mac"`
	// IPv4 is the interface's address, e.g. "10.0.0.1".
	IPv4 string `koanf:"ipv4"`
	// Mask is the subnet mask, e.g. "255.255.255.0".
	Mask string `koanf:"mask"`
	// Gateway is the default gateway address, e.g. "10.0.0.254".
	Gateway string `koanf:"gateway"`
}

// ParsedMAC parses MAC as a netutil.MAC.
func (ic IfaceConfig) ParsedMAC() (netutil.MAC, error) {
	return parseMAC(ic.MAC)
}

// ParsedIPv4 parses IPv4 as a netutil.IPv4.
func (ic IfaceConfig) ParsedIPv4() (netutil.IPv4, error) {
	return parseIPv4(ic.IPv4)
}

// ParsedMask parses Mask as a netutil.IPv4.
func (ic IfaceConfig) ParsedMask() (netutil.IPv4, error) {
	return parseIPv4(ic.Mask)
}

// ParsedGateway parses Gateway as a netutil.IPv4.
func (ic IfaceConfig) ParsedGateway() (netutil.IPv4, error) {
	return parseIPv4(ic.Gateway)
}

func parseMAC(s string) (netutil.MAC, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return netutil.MAC{}, fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	var mac netutil.MAC
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return netutil.MAC{}, fmt.Errorf("%w: %q: %w", ErrInvalidMAC, s, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}

func parseIPv4(s string) (netutil.IPv4, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netutil.IPv4{}, fmt.Errorf("%w: %q", ErrInvalidIPv4, s)
	}
	var ip netutil.IPv4
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return netutil.IPv4{}, fmt.Errorf("%w: %q: %w", ErrInvalidIPv4, s, err)
		}
		ip[i] = byte(n)
	}
	return ip, nil
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// StatsConfig controls periodic snapshotting of stack/heap occupancy to a
// local JSON file for netstackctl to read, in place of an RPC surface.
type StatsConfig struct {
	// Path is the file netstackd writes a stats snapshot to.
	Path string `koanf:"path"`
	// IntervalSeconds is how often the snapshot is refreshed.
	IntervalSeconds int `koanf:"interval_seconds"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Heap: HeapConfig{
			SizeBytes: 1 << 20, // 1 MiB
		},
		Iface: IfaceConfig{
			MAC:     "02:00:00:00:00:01",
			IPv4:    "10.0.0.1",
			Mask:    "255.255.255.0",
			Gateway: "10.0.0.254",
		},
		Tunnel: TunnelConfig{
			ListenAddr: "0.0.0.0:4789",
			PeerAddr:   "127.0.0.1:4789",
			VNI:        1,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Stats: StatsConfig{
			Path:            "/var/run/netstackd/stats.json",
			IntervalSeconds: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for netstackd configuration.
// Variables are named NETSTACKD_<section>_<key>, e.g., NETSTACKD_HEAP_SIZE_BYTES.
const envPrefix = "NETSTACKD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NETSTACKD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NETSTACKD_HEAP_SIZE_BYTES     -> heap.size_bytes
//	NETSTACKD_IFACE_MAC           -> iface.mac
//	NETSTACKD_IFACE_IPV4          -> iface.ipv4
//	NETSTACKD_IFACE_MASK          -> iface.mask
//	NETSTACKD_IFACE_GATEWAY       -> iface.gateway
//	NETSTACKD_TUNNEL_LISTEN_ADDR  -> tunnel.listen_addr
//	NETSTACKD_TUNNEL_PEER_ADDR    -> tunnel.peer_addr
//	NETSTACKD_TUNNEL_VNI          -> tunnel.vni
//	NETSTACKD_METRICS_ADDR        -> metrics.addr
//	NETSTACKD_METRICS_PATH        -> metrics.path
//	NETSTACKD_STATS_PATH          -> stats.path
//	NETSTACKD_STATS_INTERVAL_SECONDS -> stats.interval_seconds
//	NETSTACKD_LOG_LEVEL           -> log.level
//	NETSTACKD_LOG_FORMAT          -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NETSTACKD_IFACE_IPV4 -> iface.ipv4 and
// NETSTACKD_HEAP_SIZE_BYTES -> heap.size_bytes.
// Strips the NETSTACKD_ prefix, lowercases, and replaces the first _ (the
// section separator) with .; later underscores belong to the key name.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"heap.size_bytes":        defaults.Heap.SizeBytes,
		"iface.mac":              defaults.Iface.MAC,
		"iface.ipv4":             defaults.Iface.IPv4,
		"iface.mask":             defaults.Iface.Mask,
		"iface.gateway":          defaults.Iface.Gateway,
		"tunnel.listen_addr":     defaults.Tunnel.ListenAddr,
		"tunnel.peer_addr":       defaults.Tunnel.PeerAddr,
		"tunnel.vni":             defaults.Tunnel.VNI,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"stats.path":             defaults.Stats.Path,
		"stats.interval_seconds": defaults.Stats.IntervalSeconds,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidHeapSize indicates the heap size is not positive.
	ErrInvalidHeapSize = errors.New("heap.size_bytes must be > 0")

	// ErrInvalidMAC indicates iface.mac is not a colon-separated hex MAC.
	ErrInvalidMAC = errors.New("iface.mac must be a colon-separated 6-octet hex address")

	// ErrInvalidIPv4 indicates an interface address field is not a dotted IPv4.
	ErrInvalidIPv4 = errors.New("iface address must be a dotted-decimal IPv4 address")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidTunnelAddr indicates a tunnel address is not a valid host:port.
	ErrInvalidTunnelAddr = errors.New("tunnel address must be a host:port pair")

	// ErrInvalidStatsInterval indicates stats.interval_seconds is not positive.
	ErrInvalidStatsInterval = errors.New("stats.interval_seconds must be > 0")

	// ErrEmptyStatsPath indicates stats.path is empty.
	ErrEmptyStatsPath = errors.New("stats.path must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Heap.SizeBytes <= 0 {
		return ErrInvalidHeapSize
	}

	if _, err := cfg.Iface.ParsedMAC(); err != nil {
		return err
	}
	if _, err := cfg.Iface.ParsedIPv4(); err != nil {
		return err
	}
	if _, err := cfg.Iface.ParsedMask(); err != nil {
		return err
	}
	if _, err := cfg.Iface.ParsedGateway(); err != nil {
		return err
	}

	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	if _, _, err := net.SplitHostPort(cfg.Tunnel.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTunnelAddr, cfg.Tunnel.ListenAddr)
	}
	if _, _, err := net.SplitHostPort(cfg.Tunnel.PeerAddr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTunnelAddr, cfg.Tunnel.PeerAddr)
	}

	if cfg.Stats.IntervalSeconds <= 0 {
		return ErrInvalidStatsInterval
	}
	if cfg.Stats.Path == "" {
		return ErrEmptyStatsPath
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
