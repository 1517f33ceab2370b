package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/perculacms/aicore/internal/router/adapters"
	"github.com/perculacms/aicore/internal/types"
)

// Constructor builds an adapter bound to one provider's credentials.
type Constructor func(p types.ProviderConfig) (adapters.Adapter, error)

// AdapterRegistry maps vendor types to adapter constructors.
type AdapterRegistry struct {
	mu    sync.RWMutex
	ctors map[types.VendorType]Constructor
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{ctors: make(map[types.VendorType]Constructor)}
}

func (r *AdapterRegistry) Register(vendor types.VendorType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[vendor] = ctor
}

// Vendors returns the registered vendor types in canonical order.
func (r *AdapterRegistry) Vendors() []types.VendorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.VendorType
	for _, v := range types.KnownVendors() {
		if _, ok := r.ctors[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Build returns an adapter for the provider or an UnsupportedVendorError.
func (r *AdapterRegistry) Build(p types.ProviderConfig) (adapters.Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[p.VendorType]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedVendorError{Vendor: p.VendorType}
	}
	return ctor(p)
}

// DefaultAdapters returns a registry holding the built-in vendors.
func DefaultAdapters(opts map[types.VendorType]adapters.Options, defaultTimeout time.Duration) *AdapterRegistry {
	r := NewAdapterRegistry()
	r.RegisterDefaults(opts, defaultTimeout)
	return r
}

// RegisterDefaults (re)registers the built-in vendors. opts holds per-vendor
// endpoint overrides; vendors without a timeout use defaultTimeout. Adapters
// built afterwards use the new settings, calls in flight keep the old ones.
func (r *AdapterRegistry) RegisterDefaults(opts map[types.VendorType]adapters.Options, defaultTimeout time.Duration) {
	clientFor := func(v types.VendorType) (*http.Client, adapters.Options) {
		o := opts[v]
		if o.Timeout == 0 {
			o.Timeout = defaultTimeout
		}
		return adapters.NewHTTPClient(o.Timeout), o
	}

	openaiClient, openaiOpts := clientFor(types.VendorOpenAI)
	r.Register(types.VendorOpenAI, func(p types.ProviderConfig) (adapters.Adapter, error) {
		return adapters.NewOpenAIAdapter(credentials(p), openaiOpts, openaiClient), nil
	})

	geminiClient, geminiOpts := clientFor(types.VendorGemini)
	r.Register(types.VendorGemini, func(p types.ProviderConfig) (adapters.Adapter, error) {
		return adapters.NewGeminiAdapter(credentials(p), geminiOpts, geminiClient), nil
	})

	claudeClient, claudeOpts := clientFor(types.VendorClaude)
	r.Register(types.VendorClaude, func(p types.ProviderConfig) (adapters.Adapter, error) {
		return adapters.NewClaudeAdapter(credentials(p), claudeOpts, claudeClient), nil
	})
}

func credentials(p types.ProviderConfig) adapters.Credentials {
	return adapters.Credentials{APIKey: p.APIKey, OrganizationID: p.OrganizationID}
}
