package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/perculacms/aicore/internal/auth"
)

func intPtr(v int) *int { return &v }

func serve(t *testing.T, mw func(http.Handler) http.Handler, info *auth.AuthInfo) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	if info != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), info))
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	mw := Middleware(limiterWithDefault(NewLimiter(nil), 60), NewBudgetTracker(nil), nil)

	rec, _ := serve(t, mw, &auth.AuthInfo{KeyID: "key-1", Principal: "editor", RPMLimit: intPtr(100)})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerLimit); h != "100" {
		t.Errorf("expected RateLimit-Limit=100, got %s", h)
	}
	if h := rec.Header().Get(headerRemaining); h != "100" {
		t.Errorf("expected RateLimit-Remaining=100 without redis, got %s", h)
	}
	if reset, err := strconv.Atoi(rec.Header().Get(headerReset)); err != nil || reset < 0 || reset > 60 {
		t.Errorf("expected reset within the minute, got %q", rec.Header().Get(headerReset))
	}
}

func TestMiddleware_DefaultRPM(t *testing.T) {
	mw := Middleware(limiterWithDefault(NewLimiter(nil), 42), NewBudgetTracker(nil), nil)

	rec, _ := serve(t, mw, &auth.AuthInfo{KeyID: "key-2", Principal: "editor"})

	if h := rec.Header().Get(headerLimit); h != "42" {
		t.Errorf("expected default RPM=42, got %s", h)
	}
}

func TestMiddleware_DefaultRPMChangedAtRuntime(t *testing.T) {
	limiter := limiterWithDefault(NewLimiter(nil), 42)
	mw := Middleware(limiter, NewBudgetTracker(nil), nil)
	info := &auth.AuthInfo{KeyID: "key-2", Principal: "editor"}

	rec, _ := serve(t, mw, info)
	if h := rec.Header().Get(headerLimit); h != "42" {
		t.Fatalf("expected RateLimit-Limit=42, got %s", h)
	}

	limiter.SetDefaultRPM(10)
	rec, _ = serve(t, mw, info)
	if h := rec.Header().Get(headerLimit); h != "10" {
		t.Errorf("expected RateLimit-Limit=10 after the change, got %s", h)
	}
}

func TestMiddleware_Unlimited(t *testing.T) {
	mw := Middleware(limiterWithDefault(NewLimiter(unreachableRedis(t)), 0), NewBudgetTracker(nil), nil)

	rec, called := serve(t, mw, &auth.AuthInfo{KeyID: "key-4", Principal: "service"})
	if !called {
		t.Fatal("expected request to pass without a limit")
	}
	if h := rec.Header().Get(headerLimit); h != "" {
		t.Errorf("expected no limit header, got %s", h)
	}
}

func TestMiddleware_RedisDown_FailOpen(t *testing.T) {
	mw := Middleware(limiterWithDefault(NewLimiter(unreachableRedis(t)), 1), NewBudgetTracker(nil), nil)

	for i := 0; i < 3; i++ {
		rec, called := serve(t, mw, &auth.AuthInfo{KeyID: "key-5", Principal: "editor"})
		if !called || rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through when redis is down, got %d", i, rec.Code)
		}
	}
}

func TestMiddleware_NoAuth_PassThrough(t *testing.T) {
	mw := Middleware(limiterWithDefault(NewLimiter(nil), 60), NewBudgetTracker(nil), nil)

	_, called := serve(t, mw, nil)
	if !called {
		t.Error("expected handler to be called when no auth context")
	}
}

func TestMiddleware_BudgetFailOpen(t *testing.T) {
	limit := int64(1)
	mw := Middleware(limiterWithDefault(NewLimiter(nil), 60), NewBudgetTracker(unreachableRedis(t)), nil)

	rec, called := serve(t, mw, &auth.AuthInfo{KeyID: "key-3", Principal: "editor", DailySpendLimitMicros: &limit})
	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected request to pass when Redis is down, got %d", rec.Code)
	}
}

func TestMicrosToUSD(t *testing.T) {
	if got := microsToUSD(1_250_000); got != "1.25" {
		t.Errorf("expected 1.25, got %s", got)
	}
}

func TestSeconds(t *testing.T) {
	if got := seconds(1500 * time.Millisecond); got != "2" {
		t.Errorf("expected 2, got %s", got)
	}
	if got := seconds(0); got != "0" {
		t.Errorf("expected 0, got %s", got)
	}
}

func limiterWithDefault(l *Limiter, rpm int) *Limiter {
	l.SetDefaultRPM(rpm)
	return l
}
