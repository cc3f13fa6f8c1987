// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package web

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 64 hex chars
	DefaultSessionTTL = 24 * time.Hour
	SessionCookieName = "ooi_session"
)

// ProxySession is what a browser needs to play after logging in.
type ProxySession struct {
	ID           ulid.ULID
	TokenHash    string
	WorldIP      string
	APIToken     string
	APIStartTime int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// IsExpiredAt reports whether the session is expired at t.
func (s *ProxySession) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a random session token and its hash.
// The plaintext token goes to the browser; only the hash is kept.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionStore keeps proxy sessions in memory, keyed by token hash.
// It is safe for concurrent use.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*ProxySession
}

// NewSessionStore creates a SessionStore. A non-positive ttl selects
// DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*ProxySession),
	}
}

// Create stores a new session and returns its plaintext token.
func (s *SessionStore) Create(worldIP, apiToken string, apiStartTime int64) (string, *ProxySession, error) {
	if worldIP == "" {
		return "", nil, oops.Code("SESSION_INVALID_WORLD").Errorf("world ip cannot be empty")
	}
	token, hash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	sess := &ProxySession{
		ID:           ulid.Make(),
		TokenHash:    hash,
		WorldIP:      worldIP,
		APIToken:     apiToken,
		APIStartTime: apiStartTime,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[hash] = sess
	s.mu.Unlock()
	return token, sess, nil
}

// Lookup returns the live session for token.
func (s *SessionStore) Lookup(token string) (*ProxySession, bool) {
	if token == "" {
		return nil, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[HashSessionToken(token)]
	s.mu.RUnlock()
	if !ok || sess.IsExpiredAt(s.now()) {
		return nil, false
	}
	return sess, true
}

// Delete removes the session for token. Unknown tokens are ignored.
func (s *SessionStore) Delete(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	delete(s.sessions, HashSessionToken(token))
	s.mu.Unlock()
}

// DeleteExpired removes expired sessions and returns how many were removed.
func (s *SessionStore) DeleteExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, sess := range s.sessions {
		if sess.IsExpiredAt(now) {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
