// Package cronlock provides distributed mutual exclusion for periodic tasks,
// built on Redis "set if absent, with expiry". Every cron entry point follows
// the same template: try to acquire, skip the cycle when the lock is held
// elsewhere, and release on every exit path.
//
// When no Redis client is configured the lock degrades to always-acquired
// with Supported reporting false; callers get no real exclusion in that
// environment and the flag makes that explicit.
package cronlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cronlock:"

// releaseScript deletes the lock only when the holder token still matches,
// so an expired-and-reacquired lock is never released by its old holder.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is the result of an acquisition attempt.
//
// Acquired reports whether this caller holds the lock for the lease TTL.
// Supported reports whether a real exclusion primitive backed the attempt;
// when false, Acquired is true but no exclusion is provided.
type Lease struct {
	Acquired  bool
	Supported bool

	locker *Locker
	name   string
	token  string
}

// Release frees the lock if this lease holds it. It is safe to call on any
// lease, including unacquired and unsupported ones, and should run deferred
// so the lock is released on every exit path.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || !l.Acquired || !l.Supported || l.locker == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.locker.rdb, []string{keyPrefix + l.name}, l.token).Err()
}

// Locker acquires named locks with a fixed TTL.
type Locker struct {
	rdb redis.Cmdable // nil = no exclusion available
	ttl time.Duration
}

// New constructs a Locker. A nil client is valid; every acquisition then
// succeeds with Supported=false.
func New(rdb redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// TryAcquire attempts a single atomic acquire-if-absent for name. Exactly one
// concurrent caller observes Acquired=true until the lease is released or its
// TTL expires. The attempt never blocks waiting for the lock.
//
// A Redis error is returned alongside an unacquired lease: callers treat that
// cycle as skipped, which fails safe (no work) rather than running unguarded.
func (k *Locker) TryAcquire(ctx context.Context, name string) (*Lease, error) {
	if k.rdb == nil {
		return &Lease{Acquired: true, Supported: false}, nil
	}

	token := uuid.NewString()
	ok, err := k.rdb.SetNX(ctx, keyPrefix+name, token, k.ttl).Result()
	if err != nil {
		return &Lease{Acquired: false, Supported: true}, err
	}
	return &Lease{
		Acquired:  ok,
		Supported: true,
		locker:    k,
		name:      name,
		token:     token,
	}, nil
}
