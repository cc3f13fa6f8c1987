package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ooi3/ooi/internal/banner"
	"github.com/ooi3/ooi/internal/cache"
	"github.com/ooi3/ooi/internal/config"
	"github.com/ooi3/ooi/internal/gameproxy"
	"github.com/ooi3/ooi/internal/handshake"
	"github.com/ooi3/ooi/internal/observability"
	"github.com/ooi3/ooi/internal/web"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = time.Minute
)

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// Authenticator runs logins.
	// Default: handshake.NewClient over the configured transport
	Authenticator func(cfg config.Config, rt http.RoundTripper, logger *slog.Logger) web.Authenticator

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(cfg observability.Config) *observability.Server

	// Ready is signalled with the web server address once serving.
	Ready chan<- string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.Authenticator == nil {
		out.Authenticator = func(cfg config.Config, rt http.RoundTripper, logger *slog.Logger) web.Authenticator {
			return newHandshakeClient(cfg, rt, logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = observability.NewServer
	}
	return &out
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the login service and game proxy",
		Long: `Start the HTTP server exposing the login services, the kcsapi
forward proxy and the world banner endpoint, plus the metrics/health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, deps.withDefaults())
		},
	}

	cmd.Flags().String("http-addr", ":8080", "player-facing HTTP listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("http-secure-cookie", false, "mark the session cookie Secure")

	return cmd
}

// app is the wired set of serving components.
type app struct {
	handler  *web.Handler
	sessions *web.SessionStore
	limiter  *web.RateLimiter
}

func buildApp(cfg config.Config, deps *ServeDeps, logger *slog.Logger) (*app, error) {
	rt, err := outboundTransport(cfg)
	if err != nil {
		return nil, err
	}

	sessions := web.NewSessionStore(cfg.Session.TTL)
	limiter := web.NewRateLimiter(web.RateLimiterConfig{
		PerMinute: cfg.RateLimit.LoginPerMinute,
		Burst:     cfg.RateLimit.Burst,
	})

	handler, err := web.NewHandler(web.HandlerConfig{
		Auth: deps.Authenticator(cfg, rt, logger),
		Proxy: gameproxy.New(gameproxy.Config{
			Transport: rt,
			Timeout:   cfg.Timeouts.Forward,
			Bootstrap: cache.New("bootstrap"),
			Logger:    logger,
		}),
		Banners: banner.New(banner.Config{
			Transport: rt,
			Timeout:   cfg.Timeouts.Banner,
			Store:     cache.New("banner"),
			Logger:    logger,
		}),
		Sessions:     sessions,
		Limiter:      limiter,
		Logger:       logger,
		SecureCookie: cfg.HTTP.SecureCookie,
	})
	if err != nil {
		limiter.Close()
		return nil, fmt.Errorf("failed to build handler: %w", err)
	}
	return &app{handler: handler, sessions: sessions, limiter: limiter}, nil
}

// runServe serves until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	logger := setupLogging(cfg.Log)
	logger.Info("starting ooi",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"proxy_enabled", cfg.Proxy != "",
	)

	a, err := buildApp(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer a.limiter.Close()

	readiness := observability.NewReadiness("web server not started")
	var obsServer *observability.Server
	var obsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(observability.Config{
			Addr:    cfg.Metrics.Addr,
			Version: version,
			Ready:   readiness.Check,
			Registrars: []observability.Registrar{
				handshake.RegisterMetrics,
				gameproxy.RegisterMetrics,
				cache.RegisterMetrics,
				web.RegisterMetrics,
			},
		})
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
	}

	webServer := web.NewServer(cfg.HTTP.Addr, a.handler.Routes())
	webErrCh, err := webServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return fmt.Errorf("failed to start web server: %w", err)
	}
	readiness.MarkReady()
	if deps.Ready != nil {
		deps.Ready <- webServer.Addr()
	}

	reapCtx, stopReaper := context.WithCancel(ctx)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reapSessions(reapCtx, a.sessions, obsServer, logger)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-webErrCh:
		runErr = fmt.Errorf("web server failed: %w", err)
	case err := <-obsErrCh:
		runErr = fmt.Errorf("observability server failed: %w", err)
	}

	readiness.MarkNotReady("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	stopObservability(obsServer)
	stopReaper()
	<-reaperDone

	logger.Info("shutdown complete")
	return runErr
}

// reapSessions drops expired proxy sessions until ctx is done.
func reapSessions(ctx context.Context, sessions *web.SessionStore, obs *observability.Server, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.DeleteExpired(); removed > 0 {
				logger.Debug("expired proxy sessions removed", "count", removed)
			}
			if obs != nil {
				obs.Metrics().SetProxySessions(sessions.Len())
			}
		}
	}
}

func stopObservability(s *observability.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}
