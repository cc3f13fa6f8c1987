// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ooi3/ooi/internal/transport"
)

var tracer = otel.Tracer("ooi/handshake")

// Config configures a Client. Zero values select the defaults.
type Config struct {
	// Transport is shared by every handshake. Each handshake still gets its
	// own cookie jar.
	Transport http.RoundTripper
	Endpoints Endpoints
	Timeouts  Timeouts
	Logger    *slog.Logger
	// Now supplies the cache-busting timestamps.
	Now func() time.Time
}

// Client runs handshakes. It holds no per-login state and is safe for
// concurrent use.
type Client struct {
	transport http.RoundTripper
	endpoints Endpoints
	timeouts  Timeouts
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	c := &Client{
		transport: cfg.Transport,
		endpoints: cfg.Endpoints,
		timeouts:  cfg.Timeouts.withDefaults(),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.endpoints == (Endpoints{}) {
		c.endpoints = DefaultEndpoints()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// stage is one atomic step of the pipeline.
type stage struct {
	name    string
	timeout time.Duration
	// code and message describe a transport failure or timeout.
	code    string
	message string
	run     func(ctx context.Context, s *Session) error
}

func (c *Client) osapiStages() []stage {
	return []stage{
		{name: "login", timeout: c.timeouts.Login, code: CodeStageTimeout, message: msgLoginUnreachable, run: c.fetchLoginTokens},
		{name: "ajax", timeout: c.timeouts.Ajax, code: CodeAjaxExchangeFailed, message: msgAjaxFailed, run: c.exchangeAjaxToken},
		{name: "auth", timeout: c.timeouts.Auth, code: CodeStageTimeout, message: msgAuthTimeout, run: c.submitCredentials},
		{name: "game", timeout: c.timeouts.Game, code: CodeStageTimeout, message: msgGameTimeout, run: c.fetchOSAPIURL},
	}
}

func (c *Client) flashStages() []stage {
	return append(c.osapiStages(),
		stage{name: "world", timeout: c.timeouts.World, code: CodeServerUnavailable, message: msgWorldUnreachable, run: c.resolveWorld},
		stage{name: "api_token", timeout: c.timeouts.Token, code: CodeAPITokenUnavailable, message: msgGadgetTimeout, run: c.requestAPIToken},
	)
}

// ResolveOSAPI logs in and returns the OSAPI gadget url.
func (c *Client) ResolveOSAPI(ctx context.Context, creds Credentials) (string, error) {
	s, err := c.handshake(ctx, "osapi", creds, c.osapiStages())
	if err != nil {
		return "", err
	}
	return s.OSAPIURL, nil
}

// ResolveFlash logs in, resolves the player's world and obtains a signed
// api token. The returned Result carries the composed Flash url.
func (c *Client) ResolveFlash(ctx context.Context, creds Credentials) (*Result, error) {
	s, err := c.handshake(ctx, "flash", creds, c.flashStages())
	if err != nil {
		return nil, err
	}
	return s.result(), nil
}

func (c *Client) handshake(ctx context.Context, operation string, creds Credentials, stages []stage) (*Session, error) {
	browser, err := transport.NewBrowserClient(c.transport)
	if err != nil {
		return nil, oops.Code("HANDSHAKE_SETUP_FAILED").Public(msgInternal).Wrap(err)
	}
	s := newSession(creds, browser)
	logger := c.logger.With("handshake_id", s.ID.String(), "operation", operation)
	logger.InfoContext(ctx, "handshake started")

	start := time.Now()
	defer func() {
		HandshakeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	for _, st := range stages {
		if err := c.runStage(ctx, s, st); err != nil {
			RecordHandshakeResult(operation, ErrorCode(err))
			logger.WarnContext(ctx, "handshake failed",
				"stage", st.name,
				"code", ErrorCode(err),
				"error", err,
			)
			return nil, err
		}
	}

	RecordHandshakeResult(operation, StatusSuccess)
	logger.InfoContext(ctx, "handshake completed",
		"world_id", s.WorldID,
		"world_ip", s.WorldIP,
		"duration", time.Since(start),
	)
	return s, nil
}

func (c *Client) runStage(ctx context.Context, s *Session, st stage) (err error) {
	ctx, span := tracer.Start(ctx, "handshake."+st.name,
		trace.WithAttributes(
			attribute.String("handshake.id", s.ID.String()),
			attribute.String("handshake.stage", st.name),
		),
	)
	defer func() {
		status := StatusSuccess
		if err != nil {
			status = ErrorCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		RecordStage(st.name, status)
		span.End()
	}()

	if err = ctx.Err(); err != nil {
		return c.cancelled(st, err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	err = st.run(stageCtx, s)
	if err == nil {
		return nil
	}
	if ErrorCode(err) != "" {
		return err
	}
	if ctx.Err() != nil {
		return c.cancelled(st, ctx.Err())
	}
	b := fail(st.code, st.message).
		With("stage", st.name).
		With("error_kind", errorKind(err))
	if errors.Is(err, context.DeadlineExceeded) {
		b = b.With("timeout", st.timeout.String())
	}
	return b.Wrap(err)
}

// Error kinds recorded on uncoded stage failures.
const (
	ErrorKindTimeout   = "timeout"
	ErrorKindNetwork   = "network"
	ErrorKindOversized = "oversized"
	ErrorKindProtocol  = "protocol"
)

// errorKind classifies a stage failure that carries no error code.
func errorKind(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, transport.ErrBodyTooLarge):
		return ErrorKindOversized
	case errors.As(err, &netErr):
		return ErrorKindNetwork
	default:
		return ErrorKindProtocol
	}
}

func (c *Client) cancelled(st stage, cause error) error {
	return fail(CodeCancelled, msgCancelled).With("stage", st.name).Wrap(cause)
}
