// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package banner serves the per-world banner images shown on the game's
// world selection screen. Images are fetched once from the asset host and
// kept for the life of the process.
package banner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/ooi3/ooi/internal/cache"
	"github.com/ooi3/ooi/internal/transport"
)

// DefaultBaseURL is the asset host directory holding world banners.
const DefaultBaseURL = "http://203.104.209.102/kcs/resources/image/world/"

// DefaultTimeout bounds a single banner fetch.
const DefaultTimeout = 5 * time.Second

// Error codes.
const (
	CodeWorldRequired       = "WORLD_REQUIRED"
	CodeSizeInvalid         = "BANNER_SIZE_INVALID"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

const maxImageBytes = 4 << 20

var sizePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ImageName returns the asset name for worldIP and size: every octet
// zero-padded to three digits, joined by underscores, then "_" and size.
// worldIP may carry a port, which is ignored.
func ImageName(worldIP, size string) (string, error) {
	if worldIP == "" {
		return "", oops.Code(CodeWorldRequired).Errorf("no world server for this session")
	}
	if !sizePattern.MatchString(size) {
		return "", oops.Code(CodeSizeInvalid).With("size", size).Errorf("invalid banner size")
	}

	host := worldIP
	if ap, err := netip.ParseAddrPort(worldIP); err == nil {
		host = ap.Addr().String()
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return "", oops.Code(CodeWorldRequired).With("world_ip", worldIP).Errorf("world address is not IPv4")
	}

	octets := addr.As4()
	parts := make([]string, 0, len(octets)+1)
	for _, o := range octets {
		parts = append(parts, fmt.Sprintf("%03d", o))
	}
	parts = append(parts, size)
	return strings.Join(parts, "_"), nil
}

// SizeFromPath extracts the size variant from a requested image file name
// of the form "<anything>_<size>.png".
func SizeFromPath(image string) (string, error) {
	name, ok := strings.CutSuffix(image, ".png")
	if !ok {
		return "", oops.Code(CodeSizeInvalid).With("image", image).Errorf("banner must be a png")
	}
	i := strings.LastIndexByte(name, '_')
	if i < 0 || i == len(name)-1 {
		return "", oops.Code(CodeSizeInvalid).With("image", image).Errorf("banner name has no size")
	}
	size := name[i+1:]
	if !sizePattern.MatchString(size) {
		return "", oops.Code(CodeSizeInvalid).With("image", image).Errorf("invalid banner size")
	}
	return size, nil
}

// Config configures a Cache. Zero values select the defaults.
type Config struct {
	Transport http.RoundTripper
	BaseURL   string
	Timeout   time.Duration
	// Store holds fetched images. Defaults to a fresh store.
	Store  *cache.Store
	Logger *slog.Logger
}

// Cache returns banner images, fetching each distinct one at most once.
type Cache struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	store   *cache.Store
	logger  *slog.Logger
}

// New creates a Cache.
func New(cfg Config) *Cache {
	c := &Cache{
		client:  &http.Client{Transport: cfg.Transport},
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		store:   cfg.Store,
		logger:  cfg.Logger,
	}
	if c.client.Transport == nil {
		c.client.Transport = http.DefaultTransport
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.store == nil {
		c.store = cache.New("banner")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Image returns the banner for worldIP in the given size variant.
func (c *Cache) Image(ctx context.Context, worldIP, size string) ([]byte, error) {
	name, err := ImageName(worldIP, size)
	if err != nil {
		return nil, err
	}
	return c.store.Load(ctx, name, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, name)
	})
}

func (c *Cache) fetch(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + name + ".png"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, oops.Code(CodeUpstreamUnavailable).With("image", name).Wrap(err)
	}
	req.Header.Set("User-Agent", transport.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.upstreamError(name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, oops.Code(CodeUpstreamUnavailable).
			With("image", name).
			With("status", resp.StatusCode).
			Errorf("asset host returned %d", resp.StatusCode)
	}

	body, err := transport.ReadBody(resp.Body, maxImageBytes)
	if err != nil {
		return nil, c.upstreamError(name, err)
	}
	c.logger.DebugContext(ctx, "banner fetched", "image", name, "bytes", len(body))
	return body, nil
}

func (c *Cache) upstreamError(name string, err error) error {
	b := oops.Code(CodeUpstreamUnavailable).With("image", name)
	if errors.Is(err, context.DeadlineExceeded) {
		b = b.With("timeout", c.timeout.String())
	}
	return b.Wrap(err)
}
