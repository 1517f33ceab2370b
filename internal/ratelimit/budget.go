package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var microsPerUSD = decimal.NewFromInt(1_000_000)

// ToMicros converts a USD amount to whole micro-dollars, rounding up so that
// spend is never under-counted.
func ToMicros(usd decimal.Decimal) int64 {
	return usd.Mul(microsPerUSD).Ceil().IntPart()
}

// BudgetResult is the outcome of a budget check.
type BudgetResult struct {
	Allowed     bool
	SpentMicros int64
	LimitMicros int64
}

// BudgetTracker tracks daily spend per principal via Redis.
type BudgetTracker struct {
	rdb *redis.Client
	now func() time.Time
}

// NewBudgetTracker creates a budget tracker. If rdb is nil, all checks pass.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb, now: time.Now}
}

func (b *BudgetTracker) dailyKey(principal string) string {
	day := b.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("aicore:budget:daily:%s:%s", principal, day)
}

// CheckDailySpend reports whether principal is under limitMicros for today.
func (b *BudgetTracker) CheckDailySpend(ctx context.Context, principal string, limitMicros int64) (BudgetResult, error) {
	if b.rdb == nil {
		return BudgetResult{Allowed: true, LimitMicros: limitMicros}, nil
	}

	spent, err := b.rdb.Get(ctx, b.dailyKey(principal)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Fail open on Redis errors
		return BudgetResult{Allowed: true, LimitMicros: limitMicros}, nil
	}

	return BudgetResult{
		Allowed:     spent < limitMicros,
		SpentMicros: spent,
		LimitMicros: limitMicros,
	}, nil
}

// RecordSpend adds cost to the principal's daily counter. Unknown or zero
// cost is ignored.
func (b *BudgetTracker) RecordSpend(ctx context.Context, principal string, cost decimal.NullDecimal) error {
	if b.rdb == nil || !cost.Valid || !cost.Decimal.IsPositive() {
		return nil
	}

	key := b.dailyKey(principal)
	now := b.now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, ToMicros(cost.Decimal))
	// keep the counter one hour past the end of the UTC day
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
