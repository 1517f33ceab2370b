package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perculacms/aicore/internal/types"
	"github.com/shopspring/decimal"
)

// JobStore persists job records.
type JobStore interface {
	InsertJob(ctx context.Context, job *types.JobRecord) error
	UpdateJob(ctx context.Context, job *types.JobRecord) error
}

// Ledger records one job per routed call.
type Ledger struct {
	store JobStore
	now   func() time.Time
	newID func() string
}

func NewLedger(store JobStore) *Ledger {
	return &Ledger{store: store, now: time.Now, newID: uuid.NewString}
}

// OpenParams describes the call a new job entry is opened for.
type OpenParams struct {
	AgentLabel    string
	Principal     string
	ClientAddress string
	Resolution    Resolution
}

// Open persists a PENDING job before the external call is made.
func (l *Ledger) Open(ctx context.Context, p OpenParams) (*Entry, error) {
	m := p.Resolution
	rec := types.JobRecord{
		ID:            l.newID(),
		AgentLabel:    p.AgentLabel,
		Principal:     optional(p.Principal),
		ClientAddress: optional(p.ClientAddress),
		ProviderID:    &m.Provider.ID,
		ModelConfigID: &m.Model.ID,
		VendorType:    m.Provider.VendorType,
		Model:         m.Model.ModelID,
		Status:        types.JobPending,
		Fallback:      m.Fallback,
		StartedAt:     l.now().UTC(),
	}
	if err := l.store.InsertJob(ctx, &rec); err != nil {
		return nil, fmt.Errorf("insert pending job: %w", err)
	}
	return &Entry{store: l.store, rec: rec}, nil
}

// Completion carries the metrics of a successful call.
type Completion struct {
	InputTokens  *int
	OutputTokens *int
	Cost         decimal.NullDecimal
	DurationMs   int64
}

// Entry is an open job. Exactly one of Complete or Fail takes effect.
type Entry struct {
	mu    sync.Mutex
	store JobStore
	rec   types.JobRecord
}

// Record returns a snapshot of the job.
func (e *Entry) Record() types.JobRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

func (e *Entry) ID() string { return e.Record().ID }

// Complete transitions the job to COMPLETED.
func (e *Entry) Complete(ctx context.Context, c Completion) error {
	return e.finalize(ctx, func(r *types.JobRecord) {
		r.Status = types.JobCompleted
		r.InputTokens = c.InputTokens
		r.OutputTokens = c.OutputTokens
		r.Cost = c.Cost
		r.DurationMs = &c.DurationMs
	})
}

// Fail transitions the job to ERROR.
func (e *Entry) Fail(ctx context.Context, durationMs int64, errText string) error {
	return e.finalize(ctx, func(r *types.JobRecord) {
		r.Status = types.JobError
		r.ErrorText = errText
		r.DurationMs = &durationMs
	})
}

// finalize applies a terminal transition. The in-memory record only changes
// once the store accepted it, so a failed write leaves the entry PENDING.
func (e *Entry) finalize(ctx context.Context, apply func(*types.JobRecord)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	next := e.rec
	apply(&next)
	if err := e.store.UpdateJob(ctx, &next); err != nil {
		return fmt.Errorf("update job %s to %s: %w", next.ID, next.Status, err)
	}
	e.rec = next
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
