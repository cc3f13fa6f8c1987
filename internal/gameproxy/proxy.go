// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package gameproxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ooi3/ooi/internal/cache"
	"github.com/ooi3/ooi/internal/transport"
)

var tracer = otel.Tracer("ooi/gameproxy")

// Bootstrap payload caching.
const (
	// BootstrapAction is the kcsapi action returning the static master data.
	BootstrapAction = "api_start2"
	// BootstrapMinBytes is the size a bootstrap response must exceed to be
	// cached. Smaller bodies are error or maintenance responses.
	BootstrapMinBytes = 100000
)

// DefaultTimeout bounds a forwarded call.
const DefaultTimeout = 5 * time.Second

// Error codes.
const (
	CodeWorldRequired       = "WORLD_REQUIRED"
	CodeActionInvalid       = "ACTION_INVALID"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// DefaultMaxResponseBytes caps a forwarded response body.
const DefaultMaxResponseBytes = 32 << 20

// Request status labels.
const (
	StatusCached    = "cached"
	StatusForwarded = "forwarded"
	StatusError     = "error"
)

// Requests counts proxied calls.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ooi_proxy_requests_total",
		Help: "Total number of proxied kcsapi calls, by action kind and outcome",
	},
	[]string{"action_kind", "status"},
)

// RegisterMetrics registers the proxy metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
}

// Request is one inbound kcsapi call.
type Request struct {
	// Action is the path below /kcsapi/, e.g. "api_port/port".
	Action string
	// Form is the client's form-encoded body.
	Form url.Values
	// Referer is the client's Referer header.
	Referer string
	// CallerHost is the Host the client addressed.
	CallerHost string
	// WorldIP is the player's world server from a completed handshake.
	WorldIP string
}

// Config configures a Proxy. Zero values select the defaults.
type Config struct {
	Transport http.RoundTripper
	Timeout   time.Duration
	// Bootstrap caches api_start2 responses. Defaults to a fresh store.
	Bootstrap *cache.Store
	// MaxResponseBytes rejects longer upstream bodies.
	MaxResponseBytes int64
	Logger           *slog.Logger
}

// Proxy forwards kcsapi calls. It is safe for concurrent use.
type Proxy struct {
	client    *http.Client
	timeout   time.Duration
	bootstrap *cache.Store
	maxBody   int64
	logger    *slog.Logger
}

// New creates a Proxy.
func New(cfg Config) *Proxy {
	p := &Proxy{
		client:    &http.Client{Transport: cfg.Transport},
		timeout:   cfg.Timeout,
		bootstrap: cfg.Bootstrap,
		maxBody:   cfg.MaxResponseBytes,
		logger:    cfg.Logger,
	}
	if p.client.Transport == nil {
		p.client.Transport = http.DefaultTransport
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.maxBody <= 0 {
		p.maxBody = DefaultMaxResponseBytes
	}
	if p.bootstrap == nil {
		p.bootstrap = cache.New("bootstrap")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Forward sends req to the player's world server and returns the response
// body. A cached bootstrap payload is returned without any outbound call.
func (p *Proxy) Forward(ctx context.Context, req Request) (body []byte, err error) {
	kind := actionKind(req.Action)
	status := StatusForwarded
	defer func() {
		if err != nil {
			status = StatusError
		}
		Requests.WithLabelValues(kind, status).Inc()
	}()

	if req.WorldIP == "" {
		return nil, oops.Code(CodeWorldRequired).Errorf("no world server for this session")
	}
	if err := validateAction(req.Action); err != nil {
		return nil, err
	}

	if req.Action == BootstrapAction {
		if cached, ok := p.bootstrap.Get(BootstrapAction); ok {
			status = StatusCached
			return cached, nil
		}
	}

	ctx, span := tracer.Start(ctx, "gameproxy.forward",
		trace.WithAttributes(
			attribute.String("kcsapi.action", req.Action),
			attribute.String("world.ip", req.WorldIP),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, err = p.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Action == BootstrapAction && len(body) > BootstrapMinBytes {
		p.bootstrap.Put(BootstrapAction, body)
		p.logger.InfoContext(ctx, "bootstrap payload cached", "bytes", len(body), "world_ip", req.WorldIP)
	}
	return body, nil
}

func (p *Proxy) post(ctx context.Context, req Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := "http://" + req.WorldIP + "/kcsapi/" + req.Action
	out, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, oops.Code(CodeActionInvalid).With("action", req.Action).Wrap(err)
	}
	out.Header.Set("User-Agent", transport.UserAgent)
	out.Header.Set("Origin", "http://"+req.WorldIP+"/")
	out.Header.Set("Referer", RewriteReferer(req.Referer, req.CallerHost, req.WorldIP))
	out.Header.Set("X-Requested-With", transport.FlashRequestedWith)
	out.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(out)
	if err != nil {
		return nil, upstreamError(req, err, p.timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := transport.ReadBody(resp.Body, p.maxBody)
	if err != nil {
		return nil, upstreamError(req, err, p.timeout)
	}
	return body, nil
}

func upstreamError(req Request, err error, timeout time.Duration) error {
	b := oops.Code(CodeUpstreamUnavailable).
		With("action", req.Action).
		With("world_ip", req.WorldIP)
	if errors.Is(err, context.DeadlineExceeded) {
		b = b.With("timeout", timeout.String())
	}
	return b.Wrap(err)
}

// RewriteReferer points a client Referer at the world server: callerHost is
// replaced by worldIP and https is downgraded to http.
func RewriteReferer(referer, callerHost, worldIP string) string {
	if callerHost != "" {
		referer = strings.ReplaceAll(referer, callerHost, worldIP)
	}
	return strings.ReplaceAll(referer, "https://", "http://")
}

func validateAction(action string) error {
	if action == "" || strings.HasPrefix(action, "/") || strings.Contains(action, "..") ||
		strings.ContainsAny(action, "?#") {
		return oops.Code(CodeActionInvalid).With("action", action).Errorf("invalid kcsapi action")
	}
	return nil
}

func actionKind(action string) string {
	if action == BootstrapAction {
		return "bootstrap"
	}
	return "api"
}
