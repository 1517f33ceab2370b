package types

import "github.com/shopspring/decimal"

// ChatResponse is the normalized result of a completion call.
// Token counts stay nil when the vendor does not report them.
type ChatResponse struct {
	Text         string     `json:"text"`
	InputTokens  *int       `json:"input_tokens"`
	OutputTokens *int       `json:"output_tokens"`
	VendorType   VendorType `json:"vendor_type"`
	Model        string     `json:"model"`

	// Set by the router once the call has been recorded.
	JobID    string              `json:"job_id,omitempty"`
	Cost     decimal.NullDecimal `json:"cost"`
	Fallback bool                `json:"fallback,omitempty"`

	// Raw holds the vendor payload for diagnostics only.
	Raw any `json:"-"`
}
