// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ooi3/ooi/internal/cache"
)

func TestStore_GetPut(t *testing.T) {
	s := cache.New("test-getput")

	_, ok := s.Get("k")
	assert.False(t, ok)

	s.Put("k", []byte("first"))
	s.Put("k", []byte("second"))

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got, "first write wins")
	assert.Equal(t, 1, s.Len())

	assert.InDelta(t, 1, testutil.ToFloat64(cache.Lookups.WithLabelValues("test-getput", cache.ResultHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(cache.Lookups.WithLabelValues("test-getput", cache.ResultMiss)), 0)
}

func TestStore_LoadCollapsesConcurrentMisses(t *testing.T) {
	s := cache.New("test-load")
	var calls atomic.Int32
	release := make(chan struct{})

	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("png"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := s.Load(context.Background(), "img", load)
			assert.NoError(t, err)
			assert.Equal(t, []byte("png"), body)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	_, err := s.Load(context.Background(), "img", func(context.Context) ([]byte, error) {
		t.Fatal("load must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
}

func TestStore_LoadErrorNotCached(t *testing.T) {
	s := cache.New("test-error")
	boom := errors.New("boom")

	_, err := s.Load(context.Background(), "k", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, s.Len())

	body, err := s.Load(context.Background(), "k", func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), body)
}

func TestStore_LoadSurvivesCancelledCaller(t *testing.T) {
	s := cache.New("test-cancel")
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value

	load := func(ctx context.Context) ([]byte, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return nil, err
		}
		return []byte("png"), nil
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Load(first, "img", load)
		firstDone <- err
	}()
	<-started

	type result struct {
		body []byte
		err  error
	}
	secondDone := make(chan result, 1)
	go func() {
		body, err := s.Load(context.Background(), "img", load)
		secondDone <- result{body, err}
	}()

	cancelFirst()
	select {
	case err := <-firstDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	close(release)
	select {
	case res := <-secondDone:
		require.NoError(t, res.err)
		assert.Equal(t, []byte("png"), res.body)
	case <-time.After(time.Second):
		t.Fatal("second caller never got the shared result")
	}
	assert.Nil(t, loadErr.Load(), "shared load must not see the caller's cancellation")
	assert.Equal(t, 1, s.Len())
}

func TestStore_LoadAlreadyCancelled(t *testing.T) {
	s := cache.New("test-precancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx, "k", func(context.Context) ([]byte, error) {
		t.Fatal("load must not start for a cancelled caller")
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
