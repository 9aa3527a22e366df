package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	dap "github.com/doh-auth-proxy/dap"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel string
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "dap-proxy <config>",
		Short: "DNS-over-HTTPS and Oblivious DoH forwarding proxy",
		Long: `dap-proxy resolves plain DNS queries from local clients by forwarding
them over DNS-over-HTTPS (RFC 8484), Oblivious DoH (RFC 9230), or
multi-relay ODoH, depending on the targets and relays configured.`,
		Example:      "  dap-proxy config.toml",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args[0])
		},
	}
	cmd.Flags().StringVarP(&opt.logLevel, "log-level", "l", "info",
		"log level; one of debug, info, warn, error")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, configPath string) error {
	level, err := parseLogLevel(opt.logLevel)
	if err != nil {
		return err
	}
	dap.SetLogLevel(level)

	cfg, err := dap.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proxy, err := dap.NewProxy(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}

	dap.Log.Info("dap-proxy starting", "config", configPath, "listeners", len(cfg.ListenAddresses))
	return proxy.Start(ctx)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
