// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package observability serves the Prometheus metrics and health checks.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// CodeNotReady is the error code of a failed readiness check.
const CodeNotReady = "NOT_READY"

// ReadinessCheck returns nil when the service can take traffic.
type ReadinessCheck func() error

// Readiness tracks whether the player-facing server is accepting requests.
// The zero value is not ready.
type Readiness struct {
	reason atomic.Pointer[string]
}

// NewReadiness returns a Readiness that is not ready for reason.
func NewReadiness(reason string) *Readiness {
	r := &Readiness{}
	r.MarkNotReady(reason)
	return r
}

// MarkReady marks the service ready.
func (r *Readiness) MarkReady() {
	ready := ""
	r.reason.Store(&ready)
}

// MarkNotReady marks the service not ready for reason.
func (r *Readiness) MarkNotReady(reason string) {
	if reason == "" {
		reason = "not ready"
	}
	r.reason.Store(&reason)
}

// Check implements ReadinessCheck.
func (r *Readiness) Check() error {
	reason := r.reason.Load()
	switch {
	case reason == nil:
		return oops.Code(CodeNotReady).Errorf("not started")
	case *reason != "":
		return oops.Code(CodeNotReady).Errorf("%s", *reason)
	}
	return nil
}

// Registrar registers a component's collectors, e.g. handshake.RegisterMetrics.
type Registrar func(prometheus.Registerer)

// Metrics are the process-level gauges.
type Metrics struct {
	buildInfo     *prometheus.GaugeVec
	proxySessions prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, version string) *Metrics {
	m := &Metrics{
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ooi_build_info",
			Help: "Build information, always 1",
		}, []string{"version"}),
		proxySessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ooi_proxy_sessions",
			Help: "Current number of stored proxy sessions",
		}),
	}
	reg.MustRegister(m.buildInfo, m.proxySessions)

	if version == "" {
		version = "unknown"
	}
	m.buildInfo.WithLabelValues(version).Set(1)
	return m
}

// SetProxySessions records the number of live proxy sessions.
func (m *Metrics) SetProxySessions(n int) {
	m.proxySessions.Set(float64(n))
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:9100".
	Addr string
	// Version is exported as the ooi_build_info version label.
	Version string
	// Ready gates /healthz/readiness. Nil means always ready.
	Ready ReadinessCheck
	// Registrars are called once with the server's registry.
	Registrars []Registrar
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness from
// its own registry.
type Server struct {
	addr     string
	ready    ReadinessCheck
	registry *prometheus.Registry
	metrics  *Metrics
	handler  http.Handler

	running  atomic.Bool
	listener net.Listener
	srv      *http.Server
}

// NewServer builds a Server. It does not listen until Start.
func NewServer(cfg Config) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := newMetrics(registry, cfg.Version)
	for _, register := range cfg.Registrars {
		register(registry)
	}

	s := &Server{
		addr:     cfg.Addr,
		ready:    cfg.Ready,
		registry: registry,
		metrics:  metrics,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	s.handler = mux
	return s
}

// Metrics returns the process-level gauges.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the server's registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the health and metrics routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background. The returned channel carries
// a serve failure and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	s.listener, s.srv = ln, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("observability server started", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_observability_server").Wrap(err)
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
			return
		}
	}
	writeHealth(w, http.StatusOK, "ok")
}

func writeHealth(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
