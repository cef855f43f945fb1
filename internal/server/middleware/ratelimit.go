// Package middleware holds HTTP middleware for the inspector server.
package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// idleBucket is how long an unused bucket survives a cleanup sweep.
const idleBucket = 10 * time.Minute

// RateLimiter is a token bucket per client address. Only requests that
// change driver state are limited; reads always pass.
type RateLimiter struct {
	perMinute int
	burst     int
	now       func() time.Time

	mutex   sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows perMinute requests per client with bursts of up to
// burst. A burst below one is raised to one.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
	}
}

// Run sweeps idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// Middleware rejects mutating requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !rl.Allow(clientIP(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)

				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// Allow consumes a token for client.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[client]
	if !ok {
		bucket = &tokenBucket{tokens: rl.burst, lastRefill: now}
		rl.buckets[client] = bucket
	}

	if rl.perMinute > 0 {
		refill := time.Minute / time.Duration(rl.perMinute)
		if add := int(now.Sub(bucket.lastRefill) / refill); add > 0 {
			bucket.tokens = min(rl.burst, bucket.tokens+add)
			bucket.lastRefill = bucket.lastRefill.Add(time.Duration(add) * refill)
		}
	}

	if bucket.tokens == 0 {
		return false
	}
	bucket.tokens--

	return true
}

func (rl *RateLimiter) sweep() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-idleBucket)
	for client, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// clientIP is the host of RemoteAddr. Forwarding headers are ignored: the
// inspector is not meant to sit behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
