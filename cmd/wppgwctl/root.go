package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/paths"
)

var (
	socketFlag  string
	configFlag  string
	jsonOutput  bool
	callTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "wppgwctl",
	Short: "Control the wppgw gateway daemon",
	Long: `wppgwctl talks to a running wppgwd over its Unix socket.

Quick Start:
  wppgwctl connect acme          # provision and show the QR to scan
  wppgwctl status acme           # current session state
  wppgwctl send acme 5511988887777 "oi"`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "daemon socket (default from config, then ~/.wppgw/wppgwd.sock)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default $WPPGW_CONFIG or ~/.wppgw/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 30*time.Second, "per-call timeout")
}

func resolveSocket() (string, error) {
	if socketFlag != "" {
		return socketFlag, nil
	}
	cfg, err := config.LoadOrDefault(paths.ResolveConfig(configFlag))
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Daemon.Socket != "" {
		return cfg.Daemon.Socket, nil
	}
	return paths.SocketPath(), nil
}

// withClient dials the daemon and runs fn with a call-scoped context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) error) error {
	socket, err := resolveSocket()
	if err != nil {
		return err
	}
	if _, err := os.Stat(socket); err != nil {
		return fmt.Errorf("daemon not running? no socket at %s", socket)
	}
	c, err := api.Dial(socket)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return fn(ctx, c)
}
