// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package config loads ooi settings from defaults, a YAML file, OOI_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/ooi3/ooi/internal/banner"
	"github.com/ooi3/ooi/internal/gameproxy"
	"github.com/ooi3/ooi/internal/handshake"
	"github.com/ooi3/ooi/internal/web"
)

// CodeInvalid marks a configuration that failed validation.
const CodeInvalid = "CONFIG_INVALID"

// Config is the complete ooi configuration.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Proxy     string          `koanf:"proxy"`
	Timeouts  TimeoutsConfig  `koanf:"timeouts"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// HTTPConfig configures the player-facing server.
type HTTPConfig struct {
	Addr         string `koanf:"addr"`
	SecureCookie bool   `koanf:"secure_cookie"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// TimeoutsConfig bounds every outbound call.
type TimeoutsConfig struct {
	handshake.Timeouts `koanf:",squash"`

	Forward time.Duration `koanf:"forward"`
	Banner  time.Duration `koanf:"banner"`
}

// SessionConfig configures proxy sessions.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// RateLimitConfig throttles the login services per client address.
type RateLimitConfig struct {
	LoginPerMinute int `koanf:"login_per_minute"`
	Burst          int `koanf:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Timeouts: TimeoutsConfig{
			Timeouts: handshake.DefaultTimeouts(),
			Forward:  gameproxy.DefaultTimeout,
			Banner:   banner.DefaultTimeout,
		},
		Session: SessionConfig{TTL: web.DefaultSessionTTL},
		RateLimit: RateLimitConfig{
			LoginPerMinute: web.DefaultLoginsPerMinute,
			Burst:          web.DefaultLoginBurst,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code(CodeInvalid).With("key", "http.addr").Errorf("http.addr is required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code(CodeInvalid).With("key", "log.format").With("value", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return oops.Code(CodeInvalid).With("key", "proxy").Errorf("proxy must be an absolute URL")
		}
	}

	durations := map[string]time.Duration{
		"timeouts.login":   c.Timeouts.Login,
		"timeouts.ajax":    c.Timeouts.Ajax,
		"timeouts.auth":    c.Timeouts.Auth,
		"timeouts.game":    c.Timeouts.Game,
		"timeouts.world":   c.Timeouts.World,
		"timeouts.token":   c.Timeouts.Token,
		"timeouts.forward": c.Timeouts.Forward,
		"timeouts.banner":  c.Timeouts.Banner,
		"session.ttl":      c.Session.TTL,
	}
	for key, d := range durations {
		if d <= 0 {
			return oops.Code(CodeInvalid).With("key", key).With("value", d.String()).
				Errorf("%s must be positive", key)
		}
	}

	if c.RateLimit.LoginPerMinute < 0 || c.RateLimit.Burst < 0 {
		return oops.Code(CodeInvalid).With("key", "ratelimit").Errorf("rate limits cannot be negative")
	}
	return nil
}
