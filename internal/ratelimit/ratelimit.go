// Package ratelimit implements a fixed-window request counter over a
// pluggable counting store: a shared Redis counter when configured, degrading
// to a process-local in-memory map when Redis is absent or erroring.
//
// The two tiers deliberately carry different guarantees:
//   - Redis windows are shared across instances and enforce the global limit.
//   - The local fallback is best-effort and per-process only; two instances
//     each allow up to the full limit. It exists so a Redis outage slows
//     abuse handling instead of failing (or unthrottling) every caller.
//
// Keys are composite: "rl:{scope}:{principal}:{windowIndex}". A window never
// smooths across its boundary; the first request after the boundary starts a
// fresh counter.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitedError reports that a caller exceeded its budget for the current
// window. RetryAfter is the remaining window time, surfaced to clients as a
// Retry-After hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds returns the retry hint in whole seconds, rounded up and
// never below 1 so clients always wait a measurable interval.
func (e *RateLimitedError) RetryAfterSeconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// PrincipalKey derives the identity a budget is charged to: the authenticated
// user when present, the caller's network address otherwise. The prefixes keep
// authenticated and anonymous traffic in separate budgets.
func PrincipalKey(userID, ip string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + ip
}

// incrScript atomically increments a window counter, starts its expiry on
// first use, and returns {count, pttl} in one round trip.
var incrScript = redis.NewScript(`
local key = KEYS[1]
local window_ms = tonumber(ARGV[1])

local count = redis.call('INCR', key)
if count == 1 then
  redis.call('PEXPIRE', key, window_ms)
end
local pttl = redis.call('PTTL', key)
return {count, pttl}
`)

// localWindow is one fallback counter. windowStart identifies the window the
// count belongs to; a stale start means the counter rolled over.
type localWindow struct {
	count       int
	windowStart time.Time
}

// Limiter enforces per-principal fixed-window limits. The zero value is not
// usable; construct with New.
//
// Limiter is safe for concurrent use.
type Limiter struct {
	rdb redis.Cmdable // nil = local-only operation
	now func() time.Time

	mu       sync.Mutex
	local    map[string]*localWindow
	cleanupN uint64
}

// New constructs a Limiter backed by rdb. A nil client is valid and puts the
// limiter in local-only mode from the start.
func New(rdb redis.Cmdable) *Limiter {
	return &Limiter{
		rdb:   rdb,
		now:   time.Now,
		local: make(map[string]*localWindow),
	}
}

// Enforce charges one request against the (scope, key) budget of limit
// requests per window. It returns nil when the request is within budget and a
// *RateLimitedError carrying the retry hint otherwise.
//
// Store failure semantics: any Redis error (timeout, connection refused,
// missing client) degrades to the local fallback rather than failing or
// blocking the caller.
func (l *Limiter) Enforce(ctx context.Context, scope, key string, limit int, window time.Duration) error {
	now := l.now()
	idx := now.UnixMilli() / window.Milliseconds()
	composite := "rl:" + scope + ":" + key + ":" + strconv.FormatInt(idx, 10)

	if l.rdb != nil {
		count, pttl, err := l.incrRedis(ctx, composite, window)
		if err == nil {
			if count > int64(limit) {
				retry := pttl
				if retry <= 0 {
					retry = window
				}
				return &RateLimitedError{RetryAfter: retry}
			}
			return nil
		}
		// fall through to the local tier on any store error
	}

	return l.enforceLocal(composite, now, limit, window)
}

// incrRedis runs the atomic increment script and decodes its reply.
func (l *Limiter) incrRedis(ctx context.Context, key string, window time.Duration) (count int64, pttl time.Duration, err error) {
	res, err := incrScript.Run(ctx, l.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %T", res)
	}
	c, _ := arr[0].(int64)
	ms, _ := arr[1].(int64)
	return c, time.Duration(ms) * time.Millisecond, nil
}

// enforceLocal increments the in-memory counter for the composite key. It
// performs opportunistic GC of expired windows after a threshold of lookups,
// before touching the requested entry, so stale windows are evicted even when
// they are the ones being fetched.
func (l *Limiter) enforceLocal(composite string, now time.Time, limit int, window time.Duration) error {
	windowStart := now.Truncate(window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupN++
	if l.cleanupN >= 5000 {
		for k, w := range l.local {
			if now.Sub(w.windowStart) >= window {
				delete(l.local, k)
			}
		}
		l.cleanupN = 0
	}

	w, ok := l.local[composite]
	if !ok || !w.windowStart.Equal(windowStart) {
		w = &localWindow{windowStart: windowStart}
		l.local[composite] = w
	}
	w.count++
	if w.count > limit {
		return &RateLimitedError{RetryAfter: windowStart.Add(window).Sub(now)}
	}
	return nil
}
