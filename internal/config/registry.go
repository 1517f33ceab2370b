package config

import (
	"fmt"

	"github.com/perculacms/aicore/internal/types"
	"github.com/shopspring/decimal"
)

// RegistryFile is a seed file of providers and their models, imported into
// the database by the admin CLI. Credentials are normally given as ${VAR}.
type RegistryFile struct {
	Providers []ProviderEntry `yaml:"providers"`
}

type ProviderEntry struct {
	Name           string       `yaml:"name"`
	Type           string       `yaml:"type"`
	APIKey         string       `yaml:"api_key"`
	OrganizationID string       `yaml:"organization_id,omitempty"`
	Active         *bool        `yaml:"active,omitempty"`
	Models         []ModelEntry `yaml:"models"`
}

type ModelEntry struct {
	ModelID     string  `yaml:"model_id"`
	Name        string  `yaml:"name"`
	InputPrice  *string `yaml:"input_price,omitempty"`
	OutputPrice *string `yaml:"output_price,omitempty"`
	Active      *bool   `yaml:"active,omitempty"`
}

// LoadRegistryFile reads and validates a registry seed file.
func LoadRegistryFile(path string) (*RegistryFile, error) {
	var rf RegistryFile
	if err := LoadFile(path, &rf); err != nil {
		return nil, err
	}
	for i, p := range rf.Providers {
		if _, err := p.ProviderConfig(); err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		for j, m := range p.Models {
			if _, err := m.ModelConfig(0); err != nil {
				return nil, fmt.Errorf("providers[%d].models[%d]: %w", i, j, err)
			}
		}
	}
	return &rf, nil
}

// ProviderConfig converts the entry into a provider record.
func (p ProviderEntry) ProviderConfig() (types.ProviderConfig, error) {
	if p.Name == "" {
		return types.ProviderConfig{}, fmt.Errorf("name is required")
	}
	vt, ok := types.ParseVendorType(p.Type)
	if !ok {
		return types.ProviderConfig{}, fmt.Errorf("provider %s: unknown type %q", p.Name, p.Type)
	}
	return types.ProviderConfig{
		Name:           p.Name,
		VendorType:     vt,
		APIKey:         p.APIKey,
		OrganizationID: p.OrganizationID,
		Active:         boolOr(p.Active, true),
	}, nil
}

// ModelConfig converts the entry into a model record for providerID.
func (m ModelEntry) ModelConfig(providerID int64) (types.ModelConfig, error) {
	if m.ModelID == "" {
		return types.ModelConfig{}, fmt.Errorf("model_id is required")
	}
	in, err := parsePrice(m.InputPrice)
	if err != nil {
		return types.ModelConfig{}, fmt.Errorf("model %s input_price: %w", m.ModelID, err)
	}
	out, err := parsePrice(m.OutputPrice)
	if err != nil {
		return types.ModelConfig{}, fmt.Errorf("model %s output_price: %w", m.ModelID, err)
	}
	name := m.Name
	if name == "" {
		name = m.ModelID
	}
	return types.ModelConfig{
		ProviderID:            providerID,
		ModelID:               m.ModelID,
		Name:                  name,
		InputPricePerMillion:  in,
		OutputPricePerMillion: out,
		Active:                boolOr(m.Active, true),
	}, nil
}

func parsePrice(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("price must not be negative")
	}
	return decimal.NewNullDecimal(d), nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
