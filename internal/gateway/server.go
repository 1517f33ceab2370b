package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/ratelimit"
	"github.com/perculacms/aicore/internal/telemetry"
)

// RouterConfig wires the HTTP API.
type RouterConfig struct {
	Handler  *Handler
	KeyStore auth.KeyStore
	// Limiter carries the default RPM for keys without their own limit.
	Limiter *ratelimit.Limiter
	Budget  *ratelimit.BudgetTracker
	Metrics *telemetry.Metrics
}

// NewRouter returns the chi router serving the public API.
func NewRouter(cfg RouterConfig) chi.Router {
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.KeyStore))

		r.Get("/v1/agents", h.ListAgents)
		r.Get("/v1/models", h.ListModels)
		r.Get("/v1/jobs", h.ListJobs)
		r.Get("/v1/jobs/{jobID}", h.GetJob)

		// calls that reach a provider are rate limited and budgeted
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(cfg.Limiter, cfg.Budget, cfg.Metrics))
			r.Post("/v1/chat", h.Chat)
			r.Post("/v1/generate", h.Generate)
			r.Post("/v1/agents/{agentID}/run", h.RunAgent)
		})
	})

	return r
}

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
