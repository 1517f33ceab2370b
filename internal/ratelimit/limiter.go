package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of counting one request against a key's RPM.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the wait until the window that denied the request closes.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter counts requests per API key in one-minute windows aligned to the
// wall clock. Each window is a Redis counter that expires with it.
type Limiter struct {
	rdb        *redis.Client
	now        func() time.Time
	defaultRPM atomic.Int64
}

// NewLimiter creates a limiter. With a nil client every request is allowed.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, now: time.Now}
}

// SetDefaultRPM sets the limit for keys without their own. It is safe to
// call while requests are being served.
func (l *Limiter) SetDefaultRPM(rpm int) { l.defaultRPM.Store(int64(rpm)) }

func (l *Limiter) DefaultRPM() int { return int(l.defaultRPM.Load()) }

func (l *Limiter) windowKey(keyID string, start time.Time) string {
	return fmt.Sprintf("aicore:rl:%s:%d", keyID, start.Unix())
}

// Allow counts one request for keyID. rpm <= 0 disables the limit. When Redis
// fails the returned decision allows the request and err says why.
func (l *Limiter) Allow(ctx context.Context, keyID string, rpm int) (Decision, error) {
	start := l.now().Truncate(time.Minute)
	d := Decision{Allowed: true, Limit: rpm, Remaining: rpm, ResetAt: start.Add(time.Minute)}
	if l.rdb == nil || rpm <= 0 {
		return d, nil
	}

	key := l.windowKey(keyID, start)
	var count *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, d.ResetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return d, fmt.Errorf("count request for key %s: %w", keyID, err)
	}

	n := int(count.Val())
	d.Allowed = n <= rpm
	d.Remaining = max(rpm-n, 0)
	return d, nil
}
