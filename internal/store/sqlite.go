package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

// SQLite implements Store on an embedded SQLite database. Prices and costs
// are kept as decimal TEXT and timestamps in UTC.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	memory := path == ":memory:"
	if !memory {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("open sqlite: parent directory %q does not exist", dir)
		}
	}

	dsn := path +
		"?_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if memory {
		// each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	logger.Info("opened sqlite database", "path", path)
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

// Migrate applies all pending schema migrations.
func (s *SQLite) Migrate() error {
	return migrateSQLite(s.db)
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) ActiveModels(ctx context.Context, filter router.ModelFilter) ([]types.ResolvedModel, error) {
	vendor := string(filter.VendorType)
	return s.queryResolved(ctx, `
		SELECT `+resolvedColumns+`
		FROM ai_models m
		JOIN ai_providers p ON p.id = m.provider_id
		WHERE m.active = 1 AND p.active = 1
		  AND (? = '' OR p.vendor_type = ?)
		  AND (? = '' OR m.model_id = ?)`+resolvedOrder,
		vendor, vendor, filter.ModelID, filter.ModelID)
}

func (s *SQLite) ListModels(ctx context.Context) ([]types.ResolvedModel, error) {
	return s.queryResolved(ctx, `
		SELECT `+resolvedColumns+`
		FROM ai_models m
		JOIN ai_providers p ON p.id = m.provider_id`+resolvedOrder)
}

func (s *SQLite) queryResolved(ctx context.Context, query string, args ...any) ([]types.ResolvedModel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLite) UpsertProvider(ctx context.Context, p *types.ProviderConfig) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_providers (name, vendor_type, api_key, organization_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			vendor_type = excluded.vendor_type,
			api_key = excluded.api_key,
			organization_id = excluded.organization_id,
			active = excluded.active
		RETURNING id`,
		p.Name, string(p.VendorType), p.APIKey, nullString(p.OrganizationID), p.Active, s.now().UTC(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM ai_providers WHERE id = ?`, p.ID).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("read provider: %w", err)
	}
	return nil
}

func (s *SQLite) UpsertModel(ctx context.Context, m *types.ModelConfig) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_models (provider_id, model_id, name, input_price_per_million, output_price_per_million, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, model_id) DO UPDATE SET
			name = excluded.name,
			input_price_per_million = excluded.input_price_per_million,
			output_price_per_million = excluded.output_price_per_million,
			active = excluded.active
		RETURNING id`,
		m.ProviderID, m.ModelID, m.Name, m.InputPricePerMillion, m.OutputPricePerMillion, m.Active,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteProvider(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	return expectRows(res)
}

func (s *SQLite) InsertJob(ctx context.Context, j *types.JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.AgentLabel, j.Principal, j.ClientAddress, j.ProviderID, j.ModelConfigID,
		string(j.VendorType), j.Model, string(j.Status), j.InputTokens, j.OutputTokens, j.Cost, j.DurationMs,
		j.ErrorText, j.Fallback, j.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob writes the terminal fields of a PENDING job.
func (s *SQLite) UpdateJob(ctx context.Context, j *types.JobRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_jobs
		SET status = ?, input_tokens = ?, output_tokens = ?, cost = ?, duration_ms = ?, error_text = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(j.Status), j.InputTokens, j.OutputTokens, j.Cost, j.DurationMs, j.ErrorText, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if err := expectRows(res); err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SQLite) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ai_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *SQLite) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.JobRecord, error) {
	query, args := jobsQuery(filter, question)
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLite) LookupKey(ctx context.Context, keyHash string) (*auth.KeyMetadata, error) {
	var meta auth.KeyMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT id, principal, name, rpm_limit, daily_spend_limit_micros, expires_at
		FROM api_keys
		WHERE key_hash = ?
		  AND status = 'active'
		  AND expires_at > ?`, keyHash, s.now().UTC(),
	).Scan(&meta.ID, &meta.Principal, &meta.Name, &meta.RPMLimit, &meta.DailySpendLimitMicros, &meta.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	return &meta, nil
}

func (s *SQLite) TouchKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, s.now().UTC(), id)
	return err
}

func (s *SQLite) CreateKey(ctx context.Context, k auth.NewKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, key_prefix, principal, name, rpm_limit, daily_spend_limit_micros, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Hash, k.Prefix, k.Principal, k.Name, k.RPMLimit, k.DailySpendLimitMicros, k.ExpiresAt.UTC(), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *SQLite) RevokeKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET status = 'revoked' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return expectRows(res)
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
