// Package ratelimit enforces fixed-window per-minute request caps keyed
// by user, client IP and bearer token. Limits are advisory back-pressure
// for an inexpensive endpoint, so the limiter always fails open: a
// broken shared store must never turn into a denial of service.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind names the identity dimension a limit applies to.
type Kind string

const (
	KindUser  Kind = "user"
	KindIP    Kind = "ip"
	KindToken Kind = "token"
)

// Limits holds per-minute caps per identity kind. Zero disables a kind.
type Limits struct {
	UserPerMinute  int
	IPPerMinute    int
	TokenPerMinute int
}

// DefaultLimits mirrors a single cheap poem per ten seconds for a user
// and a wider shared cap for addresses and tokens.
func DefaultLimits() Limits {
	return Limits{
		UserPerMinute:  6,
		IPPerMinute:    60,
		TokenPerMinute: 60,
	}
}

// windowGrace keeps the counter key alive past its minute so clock skew
// between instances cannot expire an active window early.
const windowGrace = 120 * time.Second

// Limiter counts requests in per-minute windows. With a Redis client
// the windows are shared across instances; without one, or whenever a
// Redis call fails, the decision for that call comes from an in-process
// counter instead.
type Limiter struct {
	client redis.UniversalClient
	limits Limits
	logger *zap.Logger
	clock  func() time.Time

	mu    sync.Mutex
	local map[string]*localWindow
}

type localWindow struct {
	bucket string
	count  int
}

// New builds a limiter. client may be nil for local-only counting.
func New(client redis.UniversalClient, limits Limits, logger *zap.Logger) *Limiter {
	return &Limiter{
		client: client,
		limits: limits,
		logger: logger,
		clock:  time.Now,
		local:  make(map[string]*localWindow),
	}
}

// Allow reports whether one more request is admitted for the identity.
// An empty value means the request carried no identity of that kind and
// is always admitted. Allow never returns an error.
func (l *Limiter) Allow(ctx context.Context, kind Kind, value string) bool {
	if value == "" {
		return true
	}
	limit := l.limitFor(kind)
	if limit <= 0 {
		return true
	}

	bucket := l.clock().UTC().Format("2006-01-02T15:04")
	key := fmt.Sprintf("cv:rl:%s:%s:%s", kind, value, bucket)

	if l.client != nil {
		count, err := l.client.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				l.client.Expire(ctx, key, windowGrace)
			}
			return count <= int64(limit)
		}
		l.logger.Warn("rate limit store unavailable, using local window",
			zap.String("kind", string(kind)),
			zap.Error(err))
	}

	return l.allowLocal(key, limit)
}

func (l *Limiter) allowLocal(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.local[key]
	if !ok {
		// New window; drop counters from previous minutes for this map
		// lazily by letting them be keyed per bucket and pruned here.
		l.prune()
		w = &localWindow{bucket: key}
		l.local[key] = w
	}
	w.count++
	return w.count <= limit
}

// prune discards windows whose minute bucket is no longer current. Keys
// embed the bucket, so anything not matching the current minute is stale.
func (l *Limiter) prune() {
	current := l.clock().UTC().Format("2006-01-02T15:04")
	for key := range l.local {
		if len(key) < len(current) || key[len(key)-len(current):] != current {
			delete(l.local, key)
		}
	}
}

func (l *Limiter) limitFor(kind Kind) int {
	switch kind {
	case KindUser:
		return l.limits.UserPerMinute
	case KindIP:
		return l.limits.IPPerMinute
	case KindToken:
		return l.limits.TokenPerMinute
	}
	return 0
}
