package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobCompleted JobStatus = "COMPLETED"
	JobError     JobStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// JobRecord is the audit entry for one routed AI call.
type JobRecord struct {
	ID            string              `json:"id"`
	AgentLabel    string              `json:"agent_label"`
	Principal     *string             `json:"principal,omitempty"`
	ClientAddress *string             `json:"client_address,omitempty"`
	ProviderID    *int64              `json:"provider_id,omitempty"`
	ModelConfigID *int64              `json:"model_config_id,omitempty"`
	VendorType    VendorType          `json:"vendor_type"`
	Model         string              `json:"model"`
	Status        JobStatus           `json:"status"`
	InputTokens   *int                `json:"input_tokens"`
	OutputTokens  *int                `json:"output_tokens"`
	Cost          decimal.NullDecimal `json:"cost"`
	DurationMs    *int64              `json:"duration_ms"`
	ErrorText     string              `json:"error_text,omitempty"`
	Fallback      bool                `json:"fallback"`
	StartedAt     time.Time           `json:"started_at"`
}

// JobFilter narrows job listings. Zero values match everything.
type JobFilter struct {
	AgentLabel string
	Status     JobStatus
	Principal  string
	Limit      int
}
