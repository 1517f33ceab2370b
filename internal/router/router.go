package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/perculacms/aicore/internal/redact"
	"github.com/perculacms/aicore/internal/router/adapters"
	"github.com/perculacms/aicore/internal/telemetry"
	"github.com/perculacms/aicore/internal/types"
)

// DefaultAgentLabel tags calls made without an agent.
const DefaultAgentLabel = "core.ai"

// ErrInvalidRequest is returned for requests rejected before resolution.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatParams describes one routed chat call. VendorType and ModelID are
// optional selection hints.
type ChatParams struct {
	Messages      []types.Message
	VendorType    types.VendorType
	ModelID       string
	AgentLabel    string
	Principal     string
	ClientAddress string
	Temperature   *float64
	MaxTokens     *int
}

// Router resolves a model, dispatches the call and records it in the ledger.
type Router struct {
	resolver     *Resolver
	adapters     *AdapterRegistry
	ledger       *Ledger
	scrubber     *redact.Scrubber
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	defaultLabel string
}

type Option func(*Router)

func WithMetrics(m *telemetry.Metrics) Option { return func(r *Router) { r.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

func WithDefaultAgentLabel(label string) Option {
	return func(r *Router) {
		if label != "" {
			r.defaultLabel = label
		}
	}
}

func New(resolver *Resolver, registry *AdapterRegistry, ledger *Ledger, opts ...Option) *Router {
	r := &Router{
		resolver:     resolver,
		adapters:     registry,
		ledger:       ledger,
		scrubber:     redact.NewScrubber(),
		logger:       slog.Default(),
		defaultLabel: DefaultAgentLabel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate sends prompt as a single user message.
func (r *Router) Generate(ctx context.Context, prompt string, p ChatParams) (*types.ChatResponse, error) {
	p.Messages = []types.Message{{Role: types.RoleUser, Content: prompt}}
	return r.Chat(ctx, p)
}

// Chat performs one routed call. Resolution and adapter construction errors
// are returned before any job is recorded. Once the job is open, it always
// reaches COMPLETED or ERROR and adapter errors are returned unchanged.
func (r *Router) Chat(ctx context.Context, p ChatParams) (*types.ChatResponse, error) {
	if err := types.ValidateMessages(p.Messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	res, err := r.resolver.Resolve(ctx, p.ModelID, p.VendorType)
	if err != nil {
		return nil, err
	}

	adapter, err := r.adapters.Build(res.Provider)
	if err != nil {
		return nil, err
	}

	label := p.AgentLabel
	if label == "" {
		label = r.defaultLabel
	}

	entry, err := r.ledger.Open(ctx, OpenParams{
		AgentLabel:    label,
		Principal:     p.Principal,
		ClientAddress: p.ClientAddress,
		Resolution:    res,
	})
	if err != nil {
		return nil, err
	}

	return r.dispatch(ctx, entry, adapter, res, label, types.ChatRequest{
		Model:       res.Model.ModelID,
		Messages:    p.Messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
}

func (r *Router) dispatch(ctx context.Context, entry *Entry, adapter adapters.Adapter, res Resolution, label string, req types.ChatRequest) (resp *types.ChatResponse, err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start).Milliseconds()
		if rec := recover(); rec != nil {
			r.fail(ctx, entry, res, label, elapsed, fmt.Errorf("adapter panic: %v", rec))
			panic(rec)
		}
		if err != nil {
			resp = nil
			r.fail(ctx, entry, res, label, elapsed, err)
		}
	}()

	resp, err = adapter.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &adapters.AdapterError{
			Vendor: res.Provider.VendorType,
			Kind:   adapters.KindMalformed,
			Err:    errors.New("adapter returned no response"),
		}
	}

	cost := CalculateCost(resp.InputTokens, resp.OutputTokens, res.Model.InputPricePerMillion, res.Model.OutputPricePerMillion)
	elapsed := time.Since(start).Milliseconds()

	// The terminal write must land even if the caller has gone away.
	if err := entry.Complete(context.WithoutCancel(ctx), Completion{
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         cost,
		DurationMs:   elapsed,
	}); err != nil {
		return nil, err
	}

	resp.VendorType = res.Provider.VendorType
	resp.Model = res.Model.ModelID
	resp.JobID = entry.ID()
	resp.Cost = cost
	resp.Fallback = res.Fallback

	r.logger.Info("ai call completed",
		"job_id", resp.JobID,
		"agent", label,
		"vendor_type", resp.VendorType,
		"model", resp.Model,
		"duration_ms", elapsed,
		"input_tokens", derefInt(resp.InputTokens),
		"output_tokens", derefInt(resp.OutputTokens),
		"cost", cost.Decimal.String(),
		"fallback", res.Fallback,
	)
	r.record(res, label, types.JobCompleted, elapsed, resp.InputTokens, resp.OutputTokens, cost.Decimal.InexactFloat64())
	return resp, nil
}

func (r *Router) fail(ctx context.Context, entry *Entry, res Resolution, label string, elapsed int64, cause error) {
	text := r.scrubber.Scrub(cause.Error(), res.Provider.APIKey)
	if err := entry.Fail(context.WithoutCancel(ctx), elapsed, text); err != nil {
		r.logger.Error("failed to record job failure",
			"job_id", entry.ID(),
			"error", r.scrubber.Scrub(err.Error(), res.Provider.APIKey),
		)
	}
	r.logger.Warn("ai call failed",
		"job_id", entry.ID(),
		"agent", label,
		"vendor_type", res.Provider.VendorType,
		"model", res.Model.ModelID,
		"duration_ms", elapsed,
		"error", text,
	)
	r.record(res, label, types.JobError, elapsed, nil, nil, 0)
}

func (r *Router) record(res Resolution, label string, status types.JobStatus, elapsed int64, in, out *int, cost float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordDispatch(telemetry.DispatchLabels{
		Vendor:       string(res.Provider.VendorType),
		Model:        res.Model.ModelID,
		Agent:        label,
		Status:       string(status),
		DurationMs:   float64(elapsed),
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		Fallback:     res.Fallback,
	})
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
