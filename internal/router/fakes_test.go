package router

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/perculacms/aicore/internal/types"
)

// fakeSource implements ModelSource over an in-memory registry.
type fakeSource struct {
	providers []types.ProviderConfig
	models    []types.ModelConfig
	err       error
}

func (f *fakeSource) ActiveModels(_ context.Context, filter ModelFilter) ([]types.ResolvedModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	byID := make(map[int64]types.ProviderConfig)
	for _, p := range f.providers {
		byID[p.ID] = p
	}
	var out []types.ResolvedModel
	for _, m := range f.models {
		p, ok := byID[m.ProviderID]
		if !ok || !p.Active || !m.Active {
			continue
		}
		if filter.VendorType != "" && p.VendorType != filter.VendorType {
			continue
		}
		if filter.ModelID != "" && m.ModelID != filter.ModelID {
			continue
		}
		out = append(out, types.ResolvedModel{Model: m, Provider: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Provider.Name != b.Provider.Name {
			return a.Provider.Name < b.Provider.Name
		}
		if a.Provider.ID != b.Provider.ID {
			return a.Provider.ID < b.Provider.ID
		}
		if a.Model.Name != b.Model.Name {
			return a.Model.Name < b.Model.Name
		}
		return a.Model.ID < b.Model.ID
	})
	return out, nil
}

// fakeJobStore implements JobStore and keeps every write.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]types.JobRecord
	order     []string
	updates   int
	insertErr error
	updateErr error
	// failUpdates makes the first n updates fail with updateErr.
	failUpdates int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]types.JobRecord)}
}

func (f *fakeJobStore) InsertJob(_ context.Context, job *types.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.jobs[job.ID] = *job
	f.order = append(f.order, job.ID)
	return nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, job *types.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failUpdates > 0 {
		f.failUpdates--
		return f.updateErr
	}
	if _, ok := f.jobs[job.ID]; !ok {
		return errors.New("job not found")
	}
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeJobStore) all() []types.JobRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.JobRecord, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.jobs[id])
	}
	return out
}

// fakeAdapter returns a canned response or error. With neither set it
// returns a nil response and a nil error.
type fakeAdapter struct {
	mu       sync.Mutex
	resp     *types.ChatResponse
	err      error
	panicMsg string
	requests []types.ChatRequest
}

func (f *fakeAdapter) Chat(_ context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil || f.resp == nil {
		return nil, f.err
	}
	r := *f.resp
	return &r, nil
}
