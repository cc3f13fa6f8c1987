// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package web

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Login rate limiting defaults.
const (
	DefaultLoginsPerMinute = 10
	DefaultLoginBurst      = 5
	DefaultCleanupInterval = 5 * time.Minute
	DefaultClientMaxIdle   = time.Hour
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// PerMinute is the sustained number of logins per client per minute.
	PerMinute int
	// Burst is the number of logins a client may make back to back.
	Burst int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
	// MaxIdle is how long a client may be idle before it is forgotten.
	MaxIdle time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits login attempts per client address. It is safe for
// concurrent use. Call Close to stop the background cleanup.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	maxIdle time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a RateLimiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = DefaultLoginsPerMinute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultClientMaxIdle
	}

	rl := &RateLimiter{
		clients:  make(map[string]*clientBucket),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		maxIdle:  maxIdle,
		stopChan: make(chan struct{}),
	}
	rl.wg.Add(1)
	go rl.cleanupLoop(interval)
	return rl
}

// Allow reports whether client may attempt a login now, and if not, how
// long it should wait.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	bucket, ok := rl.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = bucket
	}
	bucket.lastSeen = now

	r := bucket.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, bucket := range rl.clients {
		if now.Sub(bucket.lastSeen) > rl.maxIdle {
			delete(rl.clients, client)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
	rl.wg.Wait()
}
