package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

// DBPool is the subset of *pgxpool.Pool used by Postgres, so tests can swap
// in pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	pool   DBPool
	logger *slog.Logger
	now    func() time.Time
}

// OpenPostgres creates a connection pool from cfg and pings it.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	s, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(ctx context.Context, pool DBPool, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to postgres")
	return &Postgres{pool: pool, logger: logger, now: time.Now}, nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) ActiveModels(ctx context.Context, filter router.ModelFilter) ([]types.ResolvedModel, error) {
	return s.queryResolved(ctx, `
		SELECT `+resolvedColumns+`
		FROM ai_models m
		JOIN ai_providers p ON p.id = m.provider_id
		WHERE m.active AND p.active
		  AND ($1::text = '' OR p.vendor_type = $1)
		  AND ($2::text = '' OR m.model_id = $2)`+resolvedOrder,
		string(filter.VendorType), filter.ModelID)
}

func (s *Postgres) ListModels(ctx context.Context) ([]types.ResolvedModel, error) {
	return s.queryResolved(ctx, `
		SELECT `+resolvedColumns+`
		FROM ai_models m
		JOIN ai_providers p ON p.id = m.provider_id`+resolvedOrder)
}

func (s *Postgres) queryResolved(ctx context.Context, sql string, args ...any) ([]types.ResolvedModel, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var out []types.ResolvedModel
	for rows.Next() {
		rm, err := scanResolved(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (s *Postgres) UpsertProvider(ctx context.Context, p *types.ProviderConfig) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ai_providers (name, vendor_type, api_key, organization_id, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			vendor_type = EXCLUDED.vendor_type,
			api_key = EXCLUDED.api_key,
			organization_id = EXCLUDED.organization_id,
			active = EXCLUDED.active
		RETURNING id, created_at`,
		p.Name, string(p.VendorType), p.APIKey, nullString(p.OrganizationID), p.Active,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertModel(ctx context.Context, m *types.ModelConfig) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ai_models (provider_id, model_id, name, input_price_per_million, output_price_per_million, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id, model_id) DO UPDATE SET
			name = EXCLUDED.name,
			input_price_per_million = EXCLUDED.input_price_per_million,
			output_price_per_million = EXCLUDED.output_price_per_million,
			active = EXCLUDED.active
		RETURNING id`,
		m.ProviderID, m.ModelID, m.Name, m.InputPricePerMillion, m.OutputPricePerMillion, m.Active,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteProvider(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) InsertJob(ctx context.Context, j *types.JobRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.ID, j.AgentLabel, j.Principal, j.ClientAddress, j.ProviderID, j.ModelConfigID,
		string(j.VendorType), j.Model, string(j.Status), j.InputTokens, j.OutputTokens, j.Cost, j.DurationMs,
		j.ErrorText, j.Fallback, j.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob writes the terminal fields of a job. Only PENDING rows are
// updated, so a finalized job can never be rewritten.
func (s *Postgres) UpdateJob(ctx context.Context, j *types.JobRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ai_jobs
		SET status = $2, input_tokens = $3, output_tokens = $4, cost = $5,
		    duration_ms = $6, error_text = $7
		WHERE id = $1 AND status = 'PENDING'`,
		j.ID, string(j.Status), j.InputTokens, j.OutputTokens, j.Cost, j.DurationMs, j.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", j.ID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ai_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.JobRecord, error) {
	sql, args := jobsQuery(filter, dollar)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []types.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *Postgres) LookupKey(ctx context.Context, keyHash string) (*auth.KeyMetadata, error) {
	var meta auth.KeyMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT id, principal, name, rpm_limit, daily_spend_limit_micros, expires_at
		FROM api_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > $2`, keyHash, s.now().UTC(),
	).Scan(&meta.ID, &meta.Principal, &meta.Name, &meta.RPMLimit, &meta.DailySpendLimitMicros, &meta.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	return &meta, nil
}

func (s *Postgres) TouchKey(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, s.now().UTC())
	return err
}

func (s *Postgres) CreateKey(ctx context.Context, k auth.NewKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, key_prefix, principal, name, rpm_limit, daily_spend_limit_micros, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.Hash, k.Prefix, k.Principal, k.Name, k.RPMLimit, k.DailySpendLimitMicros, k.ExpiresAt.UTC(), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *Postgres) RevokeKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET status = 'revoked' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
