// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/ooi3/ooi/internal/banner"
	"github.com/ooi3/ooi/internal/gameproxy"
	"github.com/ooi3/ooi/internal/handshake"
	"github.com/ooi3/ooi/pkg/errutil"
)

// Route labels.
const (
	RouteOSAPI  = "osapi"
	RouteFlash  = "flash"
	RouteLogout = "logout"
	RouteAPI    = "kcsapi"
	RouteBanner = "banner"
)

const (
	maxFormBytes      = 1 << 20
	msgRateLimited    = "Error: Too many login attempts, please wait"
	contentTypeJSON   = "application/json"
	contentTypePlain  = "text/plain"
	contentTypeBanner = "image/png"
)

// Requests counts HTTP requests served.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ooi_http_requests_total",
		Help: "Total number of HTTP requests, by route and response code",
	},
	[]string{"route", "code"},
)

// RegisterMetrics registers the web metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
}

// Authenticator runs the login handshake.
type Authenticator interface {
	ResolveOSAPI(ctx context.Context, creds handshake.Credentials) (string, error)
	ResolveFlash(ctx context.Context, creds handshake.Credentials) (*handshake.Result, error)
}

// Forwarder relays game API calls to a world server.
type Forwarder interface {
	Forward(ctx context.Context, req gameproxy.Request) ([]byte, error)
}

// ImageSource returns world banner images.
type ImageSource interface {
	Image(ctx context.Context, worldIP, size string) ([]byte, error)
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Auth     Authenticator
	Proxy    Forwarder
	Banners  ImageSource
	Sessions *SessionStore
	// Limiter throttles the login services. Nil disables throttling.
	Limiter *RateLimiter
	Logger  *slog.Logger
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

// Handler serves the OOI HTTP surface.
type Handler struct {
	auth         Authenticator
	proxy        Forwarder
	banners      ImageSource
	sessions     *SessionStore
	limiter      *RateLimiter
	logger       *slog.Logger
	secureCookie bool
}

// NewHandler validates cfg and creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	switch {
	case cfg.Auth == nil:
		return nil, oops.Code("HANDLER_CONFIG_INVALID").Errorf("authenticator is required")
	case cfg.Proxy == nil:
		return nil, oops.Code("HANDLER_CONFIG_INVALID").Errorf("forwarder is required")
	case cfg.Banners == nil:
		return nil, oops.Code("HANDLER_CONFIG_INVALID").Errorf("image source is required")
	case cfg.Sessions == nil:
		return nil, oops.Code("HANDLER_CONFIG_INVALID").Errorf("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:         cfg.Auth,
		proxy:        cfg.Proxy,
		banners:      cfg.Banners,
		sessions:     cfg.Sessions,
		limiter:      cfg.Limiter,
		logger:       logger,
		secureCookie: cfg.SecureCookie,
	}, nil
}

// Routes returns the request multiplexer.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /service/osapi", h.handleOSAPI)
	mux.HandleFunc("POST /service/flash", h.handleFlash)
	mux.HandleFunc("POST /service/logout", h.handleLogout)
	mux.HandleFunc("POST /kcsapi/{action...}", h.handleAPI)
	mux.HandleFunc("GET /kcs/resources/image/world/{image}", h.handleBanner)
	return mux
}

// serviceResponse is the JSON body of the login services. Status 1 is
// success and 0 is failure.
type serviceResponse struct {
	Status   int    `json:"status"`
	OSAPIURL string `json:"osapi_url,omitempty"`
	FlashURL string `json:"flash_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (h *Handler) handleOSAPI(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r, RouteOSAPI)
	if !ok {
		return
	}
	osapiURL, err := h.auth.ResolveOSAPI(r.Context(), creds)
	if err != nil {
		h.writeServiceFailure(w, r, RouteOSAPI, err)
		return
	}
	h.writeJSON(w, RouteOSAPI, http.StatusOK, serviceResponse{Status: 1, OSAPIURL: osapiURL})
}

func (h *Handler) handleFlash(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r, RouteFlash)
	if !ok {
		return
	}
	result, err := h.auth.ResolveFlash(r.Context(), creds)
	if err != nil {
		h.writeServiceFailure(w, r, RouteFlash, err)
		return
	}

	h.clearSession(w, r)
	token, sess, err := h.sessions.Create(result.WorldIP, result.APIToken, result.APIStartTime)
	if err != nil {
		errutil.LogError(h.logger, "proxy session create failed", err)
		h.writeJSON(w, RouteFlash, http.StatusOK, serviceResponse{Status: 0, Message: handshake.PublicMessage(err)})
		return
	}
	h.setSessionCookie(w, token, sess.ExpiresAt)
	h.logger.InfoContext(r.Context(), "proxy session created",
		"session_id", sess.ID.String(),
		"handshake_id", result.HandshakeID.String(),
		"world_id", result.WorldID,
	)
	h.writeJSON(w, RouteFlash, http.StatusOK, serviceResponse{Status: 1, FlashURL: result.FlashURL})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	h.writeJSON(w, RouteLogout, http.StatusOK, serviceResponse{Status: 1})
}

func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r)
	if !ok {
		h.badRequest(w, RouteAPI)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.badRequest(w, RouteAPI)
		return
	}

	body, err := h.proxy.Forward(r.Context(), gameproxy.Request{
		Action:     r.PathValue("action"),
		Form:       r.PostForm,
		Referer:    r.Header.Get("Referer"),
		CallerHost: r.Host,
		WorldIP:    sess.WorldIP,
	})
	if err != nil {
		errutil.LogError(h.logger, "kcsapi forward failed", err)
		h.badRequest(w, RouteAPI)
		return
	}
	w.Header().Set("Content-Type", contentTypePlain)
	h.write(w, RouteAPI, http.StatusOK, body)
}

func (h *Handler) handleBanner(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(r)
	if !ok {
		h.badRequest(w, RouteBanner)
		return
	}
	size, err := banner.SizeFromPath(r.PathValue("image"))
	if err != nil {
		h.badRequest(w, RouteBanner)
		return
	}
	body, err := h.banners.Image(r.Context(), sess.WorldIP, size)
	if err != nil {
		errutil.LogError(h.logger, "banner fetch failed", err)
		h.badRequest(w, RouteBanner)
		return
	}
	w.Header().Set("Content-Type", contentTypeBanner)
	w.Header().Set("Cache-Control", "no-cache")
	h.write(w, RouteBanner, http.StatusOK, body)
}

// credentials reads login_id and password from the form, answering 400 when
// either is missing and 429 when the client is over its login budget.
func (h *Handler) credentials(w http.ResponseWriter, r *http.Request, route string) (handshake.Credentials, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.badRequest(w, route)
		return handshake.Credentials{}, false
	}
	creds := handshake.Credentials{
		LoginID:  r.PostForm.Get("login_id"),
		Password: r.PostForm.Get("password"),
	}
	if creds.LoginID == "" || creds.Password == "" {
		h.badRequest(w, route)
		return handshake.Credentials{}, false
	}

	if h.limiter != nil {
		if ok, wait := h.limiter.Allow(clientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)+1))
			h.writeJSON(w, route, http.StatusTooManyRequests, serviceResponse{Status: 0, Message: msgRateLimited})
			return handshake.Credentials{}, false
		}
	}
	return creds, true
}

func (h *Handler) writeServiceFailure(w http.ResponseWriter, r *http.Request, route string, err error) {
	h.logger.WarnContext(r.Context(), "login failed",
		"route", route,
		"code", handshake.ErrorCode(err),
	)
	h.writeJSON(w, route, http.StatusOK, serviceResponse{Status: 0, Message: handshake.PublicMessage(err)})
}

func (h *Handler) session(r *http.Request) (*ProxySession, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, false
	}
	return h.sessions.Lookup(cookie.Value)
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return
	}
	h.sessions.Delete(cookie.Value)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, route string, status int, body serviceResponse) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.LogError(h.logger, "response encode failed", oops.Wrap(err))
		h.write(w, route, http.StatusInternalServerError, nil)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	h.write(w, route, status, data)
}

func (h *Handler) badRequest(w http.ResponseWriter, route string) {
	w.Header().Set("Content-Type", contentTypePlain)
	h.write(w, route, http.StatusBadRequest, []byte("400: Bad Request"))
}

func (h *Handler) write(w http.ResponseWriter, route string, status int, body []byte) {
	Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write(body)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
