// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/ooi3/ooi/internal/transport"
)

// maxBodyBytes caps how much of any identity-provider response is read.
const maxBodyBytes = 8 << 20

// Credentials is a DMM login id (e-mail or account id) and password.
// It redacts itself when logged or printed.
type Credentials struct {
	LoginID  string
	Password string
}

// LogValue implements slog.LogValuer.
func (Credentials) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// String implements fmt.Stringer.
func (Credentials) String() string {
	return "[REDACTED]"
}

// Session accumulates the values produced by each stage of one handshake.
// A Session is used for a single login attempt and discarded afterwards.
type Session struct {
	ID ulid.ULID

	// login
	DMMToken   string
	LoginToken string
	// ajax
	Token  string
	IDKey  string
	PwdKey string
	// game
	OSAPIURL string
	// world
	Owner         string
	SecurityToken string
	WorldID       int
	WorldIP       string
	// api_token
	APIToken     string
	APIStartTime int64
	FlashURL     string

	creds   Credentials
	client  *http.Client
	headers http.Header
}

func newSession(creds Credentials, client *http.Client) *Session {
	h := http.Header{}
	h.Set("User-Agent", transport.UserAgent)
	return &Session{
		ID:      ulid.Make(),
		creds:   creds,
		client:  client,
		headers: h,
	}
}

// require fails unless every named predecessor value is present.
// Arguments are name/value pairs.
func (s *Session) require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return oops.Code("SESSION_PRECONDITION").
				With("field", pairs[i]).
				Public(msgInternal).
				Errorf("stage requires %s", pairs[i])
		}
	}
	return nil
}

// set assigns a session field exactly once.
func (s *Session) set(name string, dst *string, value string) error {
	if *dst != "" {
		return oops.Code("SESSION_FIELD_REASSIGNED").
			With("field", name).
			Public(msgInternal).
			Errorf("%s already set", name)
	}
	*dst = value
	return nil
}

// get issues a GET with the session's current browser headers.
func (s *Session) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, oops.With("url", rawURL).Wrap(err)
	}
	return s.do(req)
}

// postForm issues a form-encoded POST with the session's current headers.
func (s *Session) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, oops.With("url", rawURL).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Session) do(req *http.Request) ([]byte, error) {
	for k, v := range s.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by the stage runner
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := transport.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by the stage runner
	}
	return body, nil
}

// Result is what a completed handshake hands to its caller.
type Result struct {
	HandshakeID  ulid.ULID
	OSAPIURL     string
	Owner        string
	WorldID      int
	WorldIP      string
	APIToken     string
	APIStartTime int64
	FlashURL     string
}

func (s *Session) result() *Result {
	return &Result{
		HandshakeID:  s.ID,
		OSAPIURL:     s.OSAPIURL,
		Owner:        s.Owner,
		WorldID:      s.WorldID,
		WorldIP:      s.WorldIP,
		APIToken:     s.APIToken,
		APIStartTime: s.APIStartTime,
		FlashURL:     s.FlashURL,
	}
}
