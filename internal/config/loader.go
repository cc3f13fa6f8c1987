// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides, e.g. OOI_PROXY.
const EnvPrefix = "OOI_"

// Loader layers configuration sources. Later loads override earlier ones.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	keys      map[string]string // env form (http_addr) -> key (http.addr)
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix overrides EnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
		keys:      make(map[string]string),
	}
	for _, key := range Keys() {
		l.keys[strings.ReplaceAll(key, ".", "_")] = key
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile merges a YAML file. A missing file is an error only when
// required is true.
func (l *Loader) LoadFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// LoadEnv merges environment variables carrying the prefix.
// OOI_TIMEOUTS_FORWARD=3s sets timeouts.forward. Unknown names are ignored.
func (l *Loader) LoadEnv() error {
	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return l.keys[name]
	})
	if err := l.k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return nil
}

// LoadFlags merges the flags in fs that were set on the command line.
// Flag names use dashes for dots and underscores: --http-addr, --timeouts-forward.
func (l *Loader) LoadFlags(fs *pflag.FlagSet) error {
	provider := posflag.ProviderWithFlag(fs, ".", l.k, func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		key, ok := l.keys[strings.ReplaceAll(f.Name, "-", "_")]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := l.k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	return nil
}

// Config unmarshals the merged sources over Default and validates the result.
func (l *Loader) Config() (Config, error) {
	cfg := Default()
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code(CodeInvalid).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is the usual sequence: file, then environment, then flags.
// fs may be nil.
func Load(path string, required bool, fs *pflag.FlagSet) (Config, error) {
	l := NewLoader()
	if err := l.LoadFile(path, required); err != nil {
		return Config{}, err
	}
	if err := l.LoadEnv(); err != nil {
		return Config{}, err
	}
	if fs != nil {
		if err := l.LoadFlags(fs); err != nil {
			return Config{}, err
		}
	}
	return l.Config()
}

// Keys lists every configuration key.
func Keys() []string {
	return []string{
		"http.addr",
		"http.secure_cookie",
		"metrics.addr",
		"log.format",
		"log.level",
		"proxy",
		"timeouts.login",
		"timeouts.ajax",
		"timeouts.auth",
		"timeouts.game",
		"timeouts.world",
		"timeouts.token",
		"timeouts.forward",
		"timeouts.banner",
		"session.ttl",
		"ratelimit.login_per_minute",
		"ratelimit.burst",
	}
}
