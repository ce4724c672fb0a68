package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/netstackd/internal/config"
)

func configValidateCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect netstackd configuration",
	}
	configCmd.AddCommand(newConfigValidateSubcommand())
	return configCmd
}

func newConfigValidateSubcommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a netstackd configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			fmt.Printf("config OK: %s\n", configPath)
			fmt.Printf("  iface:   %s/%s (mac %s, gateway %s)\n",
				cfg.Iface.IPv4, cfg.Iface.Mask, cfg.Iface.MAC, cfg.Iface.Gateway)
			fmt.Printf("  heap:    %d bytes\n", cfg.Heap.SizeBytes)
			fmt.Printf("  tunnel:  listen=%s peer=%s vni=%d\n",
				cfg.Tunnel.ListenAddr, cfg.Tunnel.PeerAddr, cfg.Tunnel.VNI)
			fmt.Printf("  metrics: %s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
			fmt.Printf("  stats:   %s (every %ds)\n", cfg.Stats.Path, cfg.Stats.IntervalSeconds)

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
