package config

import (
	"fmt"
	"time"

	"github.com/perculacms/aicore/internal/router/adapters"
	"github.com/perculacms/aicore/internal/types"
)

// VendorConfig overrides the transport for every provider of one vendor type.
type VendorConfig struct {
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// VendorOptions converts the vendors section into adapter options keyed by
// vendor type.
func (a AIConfig) VendorOptions() (map[types.VendorType]adapters.Options, error) {
	out := make(map[types.VendorType]adapters.Options, len(a.Vendors))
	for name, v := range a.Vendors {
		vt, ok := types.ParseVendorType(name)
		if !ok {
			return nil, fmt.Errorf("unknown vendor %q in ai.vendors", name)
		}
		out[vt] = adapters.Options{BaseURL: v.BaseURL, Timeout: v.Timeout, Headers: v.Headers}
	}
	return out, nil
}
