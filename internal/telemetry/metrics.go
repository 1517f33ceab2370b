package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the AI core.
type Metrics struct {
	DispatchTotal      *prometheus.CounterVec
	DispatchDurationMs *prometheus.HistogramVec
	TokensTotal        *prometheus.CounterVec
	CostUSDTotal       *prometheus.CounterVec
	FallbackTotal      *prometheus.CounterVec
	RateLimitHitTotal  *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg, or with the
// default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aicore_dispatch_total",
			Help: "Total number of AI calls dispatched to a provider.",
		}, []string{"vendor", "model", "agent", "status"}),

		DispatchDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aicore_dispatch_duration_ms",
			Help:    "Provider call duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"vendor", "model"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aicore_tokens_total",
			Help: "Total tokens reported by providers.",
		}, []string{"vendor", "model", "direction"}),

		CostUSDTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aicore_cost_usd_total",
			Help: "Computed cost in USD.",
		}, []string{"vendor", "model", "agent"}),

		FallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aicore_resolution_fallback_total",
			Help: "Calls served by a same-vendor fallback model.",
		}, []string{"vendor"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aicore_rate_limit_hit_total",
			Help: "Requests rejected by rate or budget limits.",
		}, []string{"dimension"}),
	}
}

// RecordDispatch records metrics for a finished provider call.
func (m *Metrics) RecordDispatch(labels DispatchLabels) {
	m.DispatchTotal.WithLabelValues(labels.Vendor, labels.Model, labels.Agent, labels.Status).Inc()
	m.DispatchDurationMs.WithLabelValues(labels.Vendor, labels.Model).Observe(labels.DurationMs)

	if labels.InputTokens != nil && *labels.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Vendor, labels.Model, "input").Add(float64(*labels.InputTokens))
	}
	if labels.OutputTokens != nil && *labels.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Vendor, labels.Model, "output").Add(float64(*labels.OutputTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Vendor, labels.Model, labels.Agent).Add(labels.CostUSD)
	}
	if labels.Fallback {
		m.FallbackTotal.WithLabelValues(labels.Vendor).Inc()
	}
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}

// DispatchLabels holds the label values for recording a dispatch.
type DispatchLabels struct {
	Vendor       string
	Model        string
	Agent        string
	Status       string
	DurationMs   float64
	InputTokens  *int
	OutputTokens *int
	CostUSD      float64
	Fallback     bool
}
