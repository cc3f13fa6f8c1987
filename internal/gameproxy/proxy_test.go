// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package gameproxy_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ooi3/ooi/internal/cache"
	"github.com/ooi3/ooi/internal/gameproxy"
	"github.com/ooi3/ooi/internal/transport"
	"github.com/ooi3/ooi/pkg/errutil"
)

type worldServer struct {
	srv   *httptest.Server
	calls atomic.Int32
	delay time.Duration

	mu       sync.Mutex
	lastReq  *http.Request
	lastForm url.Values
	bodies   map[string][]byte
}

func newWorldServer(t *testing.T) *worldServer {
	t.Helper()
	w := &worldServer{bodies: map[string][]byte{}}
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.calls.Add(1)
		if w.delay > 0 {
			select {
			case <-time.After(w.delay):
			case <-r.Context().Done():
				return
			}
		}
		_ = r.ParseForm()
		w.mu.Lock()
		w.lastReq = r
		w.lastForm = r.PostForm
		body, ok := w.bodies[r.URL.Path]
		w.mu.Unlock()
		if !ok {
			body = []byte(`svdata={"api_result":1}`)
		}
		_, _ = rw.Write(body)
	}))
	t.Cleanup(w.srv.Close)
	return w
}

func (w *worldServer) addr() string {
	return w.srv.Listener.Addr().String()
}

func TestForward_RewritesAndForwards(t *testing.T) {
	world := newWorldServer(t)
	p := gameproxy.New(gameproxy.Config{})

	body, err := p.Forward(context.Background(), gameproxy.Request{
		Action:     "api_port/port",
		Form:       url.Values{"api_token": {"T"}, "api_verno": {"1"}},
		Referer:    "https://ooi.example.com/kcs/mainD2.swf?api_token=T",
		CallerHost: "ooi.example.com",
		WorldIP:    world.addr(),
	})
	require.NoError(t, err)
	assert.Equal(t, `svdata={"api_result":1}`, string(body))

	world.mu.Lock()
	defer world.mu.Unlock()
	req := world.lastReq
	require.NotNil(t, req)
	assert.Equal(t, "/kcsapi/api_port/port", req.URL.Path)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://"+world.addr()+"/kcs/mainD2.swf?api_token=T", req.Header.Get("Referer"))
	assert.Equal(t, "http://"+world.addr()+"/", req.Header.Get("Origin"))
	assert.Equal(t, transport.UserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t, transport.FlashRequestedWith, req.Header.Get("X-Requested-With"))
	assert.Equal(t, "T", world.lastForm.Get("api_token"))
}

func TestRewriteReferer(t *testing.T) {
	tests := []struct {
		name       string
		referer    string
		callerHost string
		want       string
	}{
		{
			name:       "https downgraded",
			referer:    "https://ooi.moe/kcs/mainD2.swf",
			callerHost: "ooi.moe",
			want:       "http://1.2.3.4/kcs/mainD2.swf",
		},
		{
			name:       "http kept",
			referer:    "http://ooi.moe:8080/kcs/mainD2.swf",
			callerHost: "ooi.moe:8080",
			want:       "http://1.2.3.4/kcs/mainD2.swf",
		},
		{
			name:       "empty caller host",
			referer:    "https://ooi.moe/x",
			callerHost: "",
			want:       "http://ooi.moe/x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gameproxy.RewriteReferer(tt.referer, tt.callerHost, "1.2.3.4"))
		})
	}
}

func TestForward_CachesLargeBootstrapOnce(t *testing.T) {
	world := newWorldServer(t)
	big := bytes.Repeat([]byte("a"), gameproxy.BootstrapMinBytes+1)
	world.bodies["/kcsapi/api_start2"] = big

	bootstrap := cache.New("test-bootstrap")
	p := gameproxy.New(gameproxy.Config{Bootstrap: bootstrap})
	req := gameproxy.Request{Action: gameproxy.BootstrapAction, WorldIP: world.addr()}

	first, err := p.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, big, first)

	second, err := p.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, big, second)

	assert.Equal(t, int32(1), world.calls.Load(), "second request must be served from cache")
	assert.Equal(t, 1, bootstrap.Len())
}

func TestForward_SmallBootstrapNotCached(t *testing.T) {
	world := newWorldServer(t)
	world.bodies["/kcsapi/api_start2"] = bytes.Repeat([]byte("a"), gameproxy.BootstrapMinBytes)

	p := gameproxy.New(gameproxy.Config{Bootstrap: cache.New("test-small")})
	req := gameproxy.Request{Action: gameproxy.BootstrapAction, WorldIP: world.addr()}

	for i := 0; i < 2; i++ {
		_, err := p.Forward(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), world.calls.Load())
}

func TestForward_OversizedBootstrapRejected(t *testing.T) {
	world := newWorldServer(t)
	world.bodies["/kcsapi/api_start2"] = bytes.Repeat([]byte("a"), gameproxy.BootstrapMinBytes*2)

	bootstrap := cache.New("test-oversized")
	p := gameproxy.New(gameproxy.Config{
		Bootstrap:        bootstrap,
		MaxResponseBytes: gameproxy.BootstrapMinBytes + 10,
	})

	_, err := p.Forward(context.Background(), gameproxy.Request{Action: gameproxy.BootstrapAction, WorldIP: world.addr()})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, gameproxy.CodeUpstreamUnavailable)
	assert.ErrorIs(t, err, transport.ErrBodyTooLarge)
	assert.Zero(t, bootstrap.Len(), "truncated payload must not be cached")
}

func TestForward_OtherActionsNeverCached(t *testing.T) {
	world := newWorldServer(t)
	world.bodies["/kcsapi/api_get_member/deck"] = bytes.Repeat([]byte("a"), 2*gameproxy.BootstrapMinBytes)

	p := gameproxy.New(gameproxy.Config{})
	req := gameproxy.Request{Action: "api_get_member/deck", WorldIP: world.addr()}

	for i := 0; i < 2; i++ {
		_, err := p.Forward(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), world.calls.Load())
}

func TestForward_Timeout(t *testing.T) {
	world := newWorldServer(t)
	world.delay = time.Second
	p := gameproxy.New(gameproxy.Config{Timeout: 50 * time.Millisecond})

	_, err := p.Forward(context.Background(), gameproxy.Request{Action: "api_port/port", WorldIP: world.addr()})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, gameproxy.CodeUpstreamUnavailable)
	errutil.AssertErrorContext(t, err, "timeout", "50ms")
}

func TestForward_RequiresWorld(t *testing.T) {
	p := gameproxy.New(gameproxy.Config{})

	_, err := p.Forward(context.Background(), gameproxy.Request{Action: "api_port/port"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, gameproxy.CodeWorldRequired)
}

func TestForward_RejectsTraversal(t *testing.T) {
	p := gameproxy.New(gameproxy.Config{})

	for _, action := range []string{"", "../admin", "/api_port", "api?x=1"} {
		_, err := p.Forward(context.Background(), gameproxy.Request{Action: action, WorldIP: "127.0.0.1:1"})
		require.Error(t, err, "action %q", action)
		errutil.AssertErrorCode(t, err, gameproxy.CodeActionInvalid)
	}
}

func TestForward_ConcurrentBootstrap(t *testing.T) {
	world := newWorldServer(t)
	big := []byte(strings.Repeat("b", gameproxy.BootstrapMinBytes+10))
	world.bodies["/kcsapi/api_start2"] = big
	p := gameproxy.New(gameproxy.Config{Bootstrap: cache.New("test-concurrent")})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := p.Forward(context.Background(), gameproxy.Request{Action: gameproxy.BootstrapAction, WorldIP: world.addr()})
			assert.NoError(t, err)
			assert.Equal(t, big, body)
		}()
	}
	wg.Wait()

	before := world.calls.Load()
	_, err := p.Forward(context.Background(), gameproxy.Request{Action: gameproxy.BootstrapAction, WorldIP: world.addr()})
	require.NoError(t, err)
	assert.Equal(t, before, world.calls.Load())
}
