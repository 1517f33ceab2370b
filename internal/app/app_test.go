package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/telemetry"
	"github.com/perculacms/aicore/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(dir, "aicore.db")
	cfg.Agents.Dir = filepath.Join(dir, "agents")
	return cfg
}

func TestNew_SQLite(t *testing.T) {
	cfg := testConfig(t)
	if err := os.Mkdir(cfg.Agents.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	agent := "provider: gemini\nmodel: gemini-1.5-flash\nrole: r\ntask: t\n"
	if err := os.WriteFile(filepath.Join(cfg.Agents.Dir, "teaser.yml"), []byte(agent), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(context.Background(), cfg, quietLogger(), Options{
		Metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		SkipRedis: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Router == nil || a.Agents == nil {
		t.Fatal("router and agent service should be built")
	}
	if a.Redis != nil {
		t.Error("redis should be skipped")
	}
	if _, err := a.Catalog.Get("teaser"); err != nil {
		t.Errorf("expected agent teaser to be loaded: %v", err)
	}
	if err := a.Store.Ping(context.Background()); err != nil {
		t.Errorf("store should be usable: %v", err)
	}
}

func TestNew_MissingAgentsDir(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), quietLogger(), Options{SkipRedis: true})
	if err != nil {
		t.Fatalf("a missing agents directory should not be fatal: %v", err)
	}
	defer a.Close()

	if len(a.Catalog.List()) != 0 {
		t.Error("expected empty catalog")
	}
}

func TestNew_BadDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	if _, err := New(context.Background(), cfg, quietLogger(), Options{SkipRedis: true}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestConnectRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if rdb := ConnectRedis(ctx, config.RedisConfig{}, quietLogger()); rdb != nil {
		t.Error("expected nil client without addresses")
	}
	if rdb := ConnectRedis(ctx, config.RedisConfig{Addresses: []string{"127.0.0.1:1"}}, quietLogger()); rdb != nil {
		t.Error("expected nil client when redis is unreachable")
	}
}

func countingOpenAI(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApplyConfig(t *testing.T) {
	var oldHits, newHits atomic.Int32
	oldSrv := countingOpenAI(t, &oldHits)
	newSrv := countingOpenAI(t, &newHits)

	cfg := testConfig(t)
	cfg.AI.Vendors = map[string]config.VendorConfig{"OpenAI": {BaseURL: oldSrv.URL + "/v1"}}

	ctx := context.Background()
	a, err := New(ctx, cfg, quietLogger(), Options{SkipRedis: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	p := &types.ProviderConfig{Name: "openai-main", VendorType: types.VendorOpenAI, APIKey: "sk-test", Active: true}
	if err := a.Store.UpsertProvider(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := a.Store.UpsertModel(ctx, &types.ModelConfig{ProviderID: p.ID, ModelID: "gpt-4o", Name: "GPT-4o", Active: true}); err != nil {
		t.Fatal(err)
	}

	call := func() {
		t.Helper()
		if _, err := a.Router.Generate(ctx, "hi", router.ChatParams{}); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	call()
	if oldHits.Load() != 1 || newHits.Load() != 0 {
		t.Fatalf("expected the first call on the old endpoint, got old=%d new=%d", oldHits.Load(), newHits.Load())
	}

	next := *cfg
	next.AI.Vendors = map[string]config.VendorConfig{"OpenAI": {BaseURL: newSrv.URL + "/v1"}}
	next.AI.DefaultPrimary = "Claude"
	next.AI.DefaultSecondary = "OpenAI"
	if err := a.ApplyConfig(&next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	call()
	if newHits.Load() != 1 {
		t.Errorf("expected the reloaded endpoint to be used, got old=%d new=%d", oldHits.Load(), newHits.Load())
	}
	if got := a.Resolver.Defaults(); len(got) != 2 || got[0] != types.VendorClaude || got[1] != types.VendorOpenAI {
		t.Errorf("expected defaults [Claude OpenAI], got %v", got)
	}
}

func TestApplyConfig_InvalidKeepsCurrent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), quietLogger(), Options{SkipRedis: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()
	before := a.Resolver.Defaults()

	bad := *a.Config
	bad.AI.DefaultPrimary = "Mistral"
	if err := a.ApplyConfig(&bad); err == nil {
		t.Fatal("expected an unknown default vendor to be rejected")
	}

	bad = *a.Config
	bad.AI.Vendors = map[string]config.VendorConfig{"Mistral": {BaseURL: "http://localhost"}}
	if err := a.ApplyConfig(&bad); err == nil {
		t.Fatal("expected an unknown vendor section to be rejected")
	}

	after := a.Resolver.Defaults()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("defaults changed after a rejected reload: %v -> %v", before, after)
	}
}
