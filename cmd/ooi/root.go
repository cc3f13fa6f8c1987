package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ooi3/ooi/internal/config"
	"github.com/ooi3/ooi/internal/handshake"
	"github.com/ooi3/ooi/internal/logging"
	"github.com/ooi3/ooi/internal/transport"
	"github.com/ooi3/ooi/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the ooi CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ooi",
		Short: "ooi - Kancolle login proxy",
		Long: `ooi logs players into Kantai Collection through the DMM identity
provider and relays the game client's API calls to its world server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/ooi/config.yaml)")
	cmd.PersistentFlags().String("log-format", "json", "log format (json or text)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("proxy", "", "outbound proxy URL (http, https, socks5)")

	cmd.AddCommand(newServeCmd(nil))
	cmd.AddCommand(newLoginCmd(nil))
	cmd.AddCommand(newWorldsCmd())

	return cmd
}

// loadConfig merges the config file, OOI_* environment and the command's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, required := configFile, true
	if path == "" {
		defaultPath, err := xdg.ConfigFile()
		if err == nil {
			path = defaultPath
		}
		required = false
	}
	cfg, err := config.Load(path, required, cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg config.LogConfig) *slog.Logger {
	return logging.SetDefault("ooi", version, cfg.Format, logging.WithLevel(logging.ParseLevel(cfg.Level)))
}

// outboundTransport builds the transport shared by all outbound calls.
func outboundTransport(cfg config.Config) (*http.Transport, error) {
	rt, err := transport.NewTransport(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to build outbound transport: %w", err)
	}
	return rt, nil
}

// newHandshakeClient creates the login client for cfg.
func newHandshakeClient(cfg config.Config, rt http.RoundTripper, logger *slog.Logger) *handshake.Client {
	return handshake.NewClient(handshake.Config{
		Transport: rt,
		Timeouts:  cfg.Timeouts.Timeouts,
		Logger:    logger,
	})
}
