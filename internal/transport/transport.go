// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package transport builds the outbound HTTP clients used to talk to the
// identity provider and the game servers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/samber/oops"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// Emulated client identity.
const (
	// UserAgent is Internet Explorer 11 on 64-bit Windows 7.
	UserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; Trident/7.0; rv:11.0) like Gecko"

	// FlashRequestedWith is the X-Requested-With value sent by the Flash plugin.
	FlashRequestedWith = "ShockwaveFlash/18.0.0.232"
)

// ErrBodyTooLarge reports a response body over the caller's size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// ReadBody reads all of r. A body longer than limit bytes fails with
// ErrBodyTooLarge instead of being truncated.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by the caller
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

// NewTransport returns an http.Transport that optionally routes through the
// proxy at proxyURL. Supported schemes are http, https and socks5.
// An empty proxyURL means direct connections.
func NewTransport(proxyURL string) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	tr.ResponseHeaderTimeout = 30 * time.Second

	if proxyURL == "" {
		return tr, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, oops.Code("PROXY_URL_INVALID").With("proxy", proxyURL).Wrap(err)
	}

	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, dialErr := proxy.FromURL(u, proxy.Direct)
		if dialErr != nil {
			return nil, oops.Code("PROXY_URL_INVALID").With("proxy", u.Redacted()).Wrap(dialErr)
		}
		tr.Proxy = nil
		tr.DialContext = contextDialer(dialer)
	default:
		return nil, oops.Code("PROXY_URL_INVALID").
			With("proxy", u.Redacted()).
			Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return tr, nil
}

func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- result{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-ch; r.conn != nil {
					_ = r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}

// NewBrowserClient returns a client with its own cookie jar on top of rt.
// Each login attempt gets a fresh browser client so cookies never leak
// between users. Timeouts are carried by request contexts.
func NewBrowserClient(rt http.RoundTripper) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, oops.Code("COOKIE_JAR_FAILED").Wrap(err)
	}
	return &http.Client{Transport: rt, Jar: jar}, nil
}
