// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package web_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ooi3/ooi/internal/web"
)

func TestServer_StartStop(t *testing.T) {
	h := newHarness(t, nil)
	srv := web.NewServer("127.0.0.1:0", h.handler)

	errCh, err := srv.Start()
	require.NoError(t, err)
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	_, err = srv.Start()
	assert.Error(t, err, "second start must fail")

	resp, err := http.Post("http://"+addr+"/kcsapi/api_port/port", "text/plain", nil)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))

	_, open := <-errCh
	assert.False(t, open)
}
