package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perculacms/aicore/internal/types"
)

// ModelFilter narrows ActiveModels. Empty fields match everything.
type ModelFilter struct {
	VendorType types.VendorType
	ModelID    string
}

// ModelSource returns active models whose provider is also active, in a
// stable order: provider name, provider id, model name, model id.
type ModelSource interface {
	ActiveModels(ctx context.Context, filter ModelFilter) ([]types.ResolvedModel, error)
}

// Resolution is the outcome of model resolution.
type Resolution struct {
	types.ResolvedModel
	// Fallback is set when an explicit model hint could not be honoured
	// and another model of the same vendor was chosen.
	Fallback bool
}

// Resolver picks the model configuration for a request.
type Resolver struct {
	source ModelSource
	logger *slog.Logger

	mu       sync.RWMutex
	defaults []types.VendorType
}

// NewResolver builds a resolver. defaults lists the vendors tried, in order,
// when the caller gives no hints.
func NewResolver(source ModelSource, logger *slog.Logger, defaults ...types.VendorType) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{source: source, logger: logger}
	r.SetDefaults(defaults...)
	return r
}

// SetDefaults replaces the no-hint vendor order. An empty list restores
// OpenAI then Gemini.
func (r *Resolver) SetDefaults(defaults ...types.VendorType) {
	if len(defaults) == 0 {
		defaults = []types.VendorType{types.VendorOpenAI, types.VendorGemini}
	}
	r.mu.Lock()
	r.defaults = append([]types.VendorType(nil), defaults...)
	r.mu.Unlock()
}

// Defaults returns the current no-hint vendor order.
func (r *Resolver) Defaults() []types.VendorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.VendorType(nil), r.defaults...)
}

// Resolve applies the selection policy:
//   - vendor and model: exact match, else any model of that vendor
//   - vendor only: first model of that vendor
//   - neither: first model of each default vendor in turn, then any model
func (r *Resolver) Resolve(ctx context.Context, modelID string, vendor types.VendorType) (Resolution, error) {
	switch {
	case vendor != "" && modelID != "":
		m, ok, err := r.first(ctx, ModelFilter{VendorType: vendor, ModelID: modelID})
		if err != nil || ok {
			return Resolution{ResolvedModel: m}, err
		}
		m, ok, err = r.first(ctx, ModelFilter{VendorType: vendor})
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			r.logger.Warn("requested model not active, using vendor fallback",
				"vendor_type", vendor,
				"requested_model", modelID,
				"resolved_model", m.Model.ModelID,
			)
			return Resolution{ResolvedModel: m, Fallback: true}, nil
		}

	case vendor != "":
		m, ok, err := r.first(ctx, ModelFilter{VendorType: vendor})
		if err != nil || ok {
			return Resolution{ResolvedModel: m}, err
		}

	case modelID != "":
		// A model hint without a vendor is not a selection criterion.
		r.logger.Debug("model hint ignored without vendor", "requested_model", modelID)
		fallthrough

	default:
		for _, v := range r.Defaults() {
			m, ok, err := r.first(ctx, ModelFilter{VendorType: v})
			if err != nil || ok {
				return Resolution{ResolvedModel: m}, err
			}
		}
		m, ok, err := r.first(ctx, ModelFilter{})
		if err != nil || ok {
			return Resolution{ResolvedModel: m}, err
		}
	}

	return Resolution{}, ErrNoActiveModel
}

func (r *Resolver) first(ctx context.Context, f ModelFilter) (types.ResolvedModel, bool, error) {
	models, err := r.source.ActiveModels(ctx, f)
	if err != nil {
		return types.ResolvedModel{}, false, fmt.Errorf("query active models: %w", err)
	}
	if len(models) == 0 {
		return types.ResolvedModel{}, false, nil
	}
	return models[0], true, nil
}
