package router

import (
	"context"
	"errors"
	"testing"

	"github.com/perculacms/aicore/internal/types"
	"github.com/shopspring/decimal"
)

func openEntry(t *testing.T, store *fakeJobStore) *Entry {
	t.Helper()
	l := NewLedger(store)
	entry, err := l.Open(context.Background(), OpenParams{
		AgentLabel: "seo.writer",
		Principal:  "editor@cms",
		Resolution: Resolution{ResolvedModel: types.ResolvedModel{Model: model(10, 1, "gpt-4o"), Provider: openAIProvider()}},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return entry
}

func TestLedger_OpenPersistsPending(t *testing.T) {
	store := newFakeJobStore()
	entry := openEntry(t, store)

	jobs := store.all()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Status != types.JobPending {
		t.Errorf("expected PENDING, got %s", job.Status)
	}
	if job.ID != entry.ID() || job.ID == "" {
		t.Errorf("unexpected job id %q", job.ID)
	}
	if job.Principal == nil || *job.Principal != "editor@cms" {
		t.Errorf("expected principal, got %v", job.Principal)
	}
	if job.ClientAddress != nil {
		t.Errorf("expected nil client address, got %v", *job.ClientAddress)
	}
	if job.ModelConfigID == nil || *job.ModelConfigID != 10 || job.ProviderID == nil || *job.ProviderID != 1 {
		t.Error("expected model and provider references")
	}
	if job.DurationMs != nil || job.InputTokens != nil || job.Cost.Valid {
		t.Error("pending job should have no metrics")
	}
}

func TestLedger_OpenInsertError(t *testing.T) {
	store := newFakeJobStore()
	store.insertErr = errors.New("disk full")

	_, err := NewLedger(store).Open(context.Background(), OpenParams{AgentLabel: "x"})
	if !errors.Is(err, store.insertErr) {
		t.Errorf("expected insert error, got %v", err)
	}
}

func TestEntry_CompleteOnce(t *testing.T) {
	store := newFakeJobStore()
	entry := openEntry(t, store)

	err := entry.Complete(context.Background(), Completion{
		InputTokens:  intPtr(10),
		OutputTokens: intPtr(5),
		Cost:         decimal.NewNullDecimal(decimal.RequireFromString("0.000125")),
		DurationMs:   42,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := entry.Fail(context.Background(), 50, "late"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := entry.Complete(context.Background(), Completion{}); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}

	job := store.all()[0]
	if job.Status != types.JobCompleted || *job.DurationMs != 42 || job.ErrorText != "" {
		t.Errorf("unexpected final job: %+v", job)
	}
	if store.updates != 1 {
		t.Errorf("expected exactly 1 store update, got %d", store.updates)
	}
}

func TestEntry_FailedWriteStaysPending(t *testing.T) {
	store := newFakeJobStore()
	store.updateErr = errors.New("connection reset")
	store.failUpdates = 1
	entry := openEntry(t, store)

	if err := entry.Complete(context.Background(), Completion{DurationMs: 1}); !errors.Is(err, store.updateErr) {
		t.Fatalf("expected update error, got %v", err)
	}
	if entry.Record().Status != types.JobPending {
		t.Fatalf("entry should remain PENDING after failed write, got %s", entry.Record().Status)
	}

	if err := entry.Fail(context.Background(), 2, "connection reset"); err != nil {
		t.Fatalf("fail after failed complete: %v", err)
	}
	job := store.all()[0]
	if job.Status != types.JobError || job.ErrorText != "connection reset" {
		t.Errorf("unexpected final job: %+v", job)
	}
}
