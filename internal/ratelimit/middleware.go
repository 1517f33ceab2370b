package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/httputil"
	"github.com/perculacms/aicore/internal/telemetry"
)

const (
	headerLimit      = "RateLimit-Limit"
	headerRemaining  = "RateLimit-Remaining"
	headerReset      = "RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// Middleware enforces the per-key RPM limit and then the per-principal daily
// spend budget. Keys without their own limit get the limiter's default.
// Requests without auth info are passed through.
func Middleware(limiter *Limiter, budget *BudgetTracker, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			info, ok := auth.AuthFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			rpm := limiter.DefaultRPM()
			if info.RPMLimit != nil {
				rpm = *info.RPMLimit
			}

			now := time.Now()
			d, err := limiter.Allow(r.Context(), info.KeyID, rpm)
			if err != nil {
				slog.Warn("rate limiter unavailable, request allowed", "request_id", reqID, "error", err)
			}
			if rpm > 0 {
				w.Header().Set(headerLimit, strconv.Itoa(d.Limit))
				w.Header().Set(headerRemaining, strconv.Itoa(d.Remaining))
				w.Header().Set(headerReset, seconds(d.ResetAt.Sub(now)))
			}
			if !d.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", info.KeyID,
					"principal", info.Principal,
					"rpm", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm")
				}
				w.Header().Set(headerRetryAfter, seconds(d.RetryAfter(now)))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit of %d requests per minute exceeded", rpm))
				return
			}

			if info.DailySpendLimitMicros != nil {
				res, _ := budget.CheckDailySpend(r.Context(), info.Principal, *info.DailySpendLimitMicros)
				if !res.Allowed {
					slog.Warn("daily budget exceeded",
						"request_id", reqID,
						"principal", info.Principal,
						"spent_micros", res.SpentMicros,
						"limit_micros", res.LimitMicros,
					)
					if metrics != nil {
						metrics.RecordRateLimitHit("budget")
					}
					httputil.WriteBudgetExceededError(w, reqID,
						fmt.Sprintf("Daily budget exceeded: spent %s of %s USD",
							microsToUSD(res.SpentMicros), microsToUSD(res.LimitMicros)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// seconds renders d rounded up to whole seconds.
func seconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

func microsToUSD(m int64) string {
	return strconv.FormatFloat(float64(m)/1e6, 'f', -1, 64)
}
