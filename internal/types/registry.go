package types

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderConfig is a registered vendor account. APIKey is never serialized
// and is omitted from structured logs.
type ProviderConfig struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	VendorType     VendorType `json:"vendor_type"`
	APIKey         string     `json:"-"`
	OrganizationID string     `json:"organization_id,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LogValue implements slog.LogValuer.
func (p ProviderConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", p.ID),
		slog.String("name", p.Name),
		slog.String("vendor_type", string(p.VendorType)),
		slog.Bool("active", p.Active),
	)
}

func (p ProviderConfig) String() string {
	return p.Name + " (" + string(p.VendorType) + ")"
}

// ModelConfig is a concrete model offered by a provider. Prices are USD per
// one million tokens and may be unset.
type ModelConfig struct {
	ID                    int64               `json:"id"`
	ProviderID            int64               `json:"provider_id"`
	ModelID               string              `json:"model_id"`
	Name                  string              `json:"name"`
	InputPricePerMillion  decimal.NullDecimal `json:"input_price_per_million"`
	OutputPricePerMillion decimal.NullDecimal `json:"output_price_per_million"`
	Active                bool                `json:"active"`
}

// ResolvedModel pairs an active model with its active provider.
type ResolvedModel struct {
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
}
