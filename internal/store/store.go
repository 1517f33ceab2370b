// Package store persists the provider registry, the job ledger and API keys
// in PostgreSQL or SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
)

// Store is the full persistence surface used by the service and the CLI.
type Store interface {
	router.ModelSource
	router.JobStore
	auth.KeySource

	GetJob(ctx context.Context, id string) (*types.JobRecord, error)
	ListJobs(ctx context.Context, filter types.JobFilter) ([]types.JobRecord, error)

	ListModels(ctx context.Context) ([]types.ResolvedModel, error)
	UpsertProvider(ctx context.Context, p *types.ProviderConfig) error
	UpsertModel(ctx context.Context, m *types.ModelConfig) error
	DeleteProvider(ctx context.Context, id int64) error

	CreateKey(ctx context.Context, key auth.NewKey) error
	RevokeKey(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured database. SQLite databases are migrated
// on open; PostgreSQL schemas are managed by cmd/migrate.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg, logger)
	case config.DriverSQLite:
		s, err := OpenSQLite(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// RegistryWriter is the subset of Store needed to import a registry file.
type RegistryWriter interface {
	UpsertProvider(ctx context.Context, p *types.ProviderConfig) error
	UpsertModel(ctx context.Context, m *types.ModelConfig) error
}

// ImportResult counts the rows written by ImportRegistry.
type ImportResult struct {
	Providers int
	Models    int
}

// ImportRegistry upserts every provider and model in rf. Providers are keyed
// by name and models by (provider, model id), so repeated imports update in
// place.
func ImportRegistry(ctx context.Context, w RegistryWriter, rf *config.RegistryFile) (ImportResult, error) {
	var res ImportResult
	for _, pe := range rf.Providers {
		p, err := pe.ProviderConfig()
		if err != nil {
			return res, err
		}
		if err := w.UpsertProvider(ctx, &p); err != nil {
			return res, fmt.Errorf("upsert provider %q: %w", p.Name, err)
		}
		res.Providers++

		for _, me := range pe.Models {
			m, err := me.ModelConfig(p.ID)
			if err != nil {
				return res, fmt.Errorf("provider %q: %w", p.Name, err)
			}
			if err := w.UpsertModel(ctx, &m); err != nil {
				return res, fmt.Errorf("upsert model %q: %w", m.ModelID, err)
			}
			res.Models++
		}
	}
	return res, nil
}

// placeholder renders the n-th (1-based) bind parameter.
type placeholder func(n int) string

func dollar(n int) string   { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

// jobsQuery builds the filtered job listing shared by both drivers.
func jobsQuery(filter types.JobFilter, ph placeholder) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, col+" = "+ph(len(args)))
	}
	if filter.AgentLabel != "" {
		add("agent_label", filter.AgentLabel)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Principal != "" {
		add("principal", filter.Principal)
	}

	var b strings.Builder
	b.WriteString("SELECT " + jobColumns + " FROM ai_jobs")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}
	if limit > maxJobLimit {
		limit = maxJobLimit
	}
	args = append(args, limit)
	b.WriteString(" ORDER BY started_at DESC, id LIMIT " + ph(len(args)))
	return b.String(), args
}

const jobColumns = `id, agent_label, principal, client_address, provider_id, model_config_id,
	vendor_type, model, status, input_tokens, output_tokens, cost, duration_ms,
	error_text, fallback, started_at`

const resolvedColumns = `m.id, m.provider_id, m.model_id, m.name,
	m.input_price_per_million, m.output_price_per_million, m.active,
	p.id, p.name, p.vendor_type, p.api_key, COALESCE(p.organization_id, ''), p.active, p.created_at`

const resolvedOrder = ` ORDER BY p.name, p.id, m.name, m.id`

// scanner is satisfied by pgx.Row(s) and *sql.Row(s).
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*types.JobRecord, error) {
	var (
		j          types.JobRecord
		vendor     string
		status     string
		durationMs *int64
	)
	err := row.Scan(
		&j.ID, &j.AgentLabel, &j.Principal, &j.ClientAddress, &j.ProviderID, &j.ModelConfigID,
		&vendor, &j.Model, &status, &j.InputTokens, &j.OutputTokens, &j.Cost, &durationMs,
		&j.ErrorText, &j.Fallback, &j.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	j.VendorType = types.VendorType(vendor)
	j.Status = types.JobStatus(status)
	j.DurationMs = durationMs
	return &j, nil
}

func scanResolved(row scanner) (types.ResolvedModel, error) {
	var (
		rm     types.ResolvedModel
		vendor string
	)
	err := row.Scan(
		&rm.Model.ID, &rm.Model.ProviderID, &rm.Model.ModelID, &rm.Model.Name,
		&rm.Model.InputPricePerMillion, &rm.Model.OutputPricePerMillion, &rm.Model.Active,
		&rm.Provider.ID, &rm.Provider.Name, &vendor, &rm.Provider.APIKey,
		&rm.Provider.OrganizationID, &rm.Provider.Active, &rm.Provider.CreatedAt,
	)
	if err != nil {
		return rm, err
	}
	rm.Provider.VendorType = types.VendorType(vendor)
	return rm, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
