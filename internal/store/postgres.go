package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the repository uses. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresRepository with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresRepository, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresRepository{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resolved_records (
	entity_key    TEXT PRIMARY KEY,
	record        JSONB NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_review  BOOLEAN NOT NULL DEFAULT FALSE,
	review_reason TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provenance (
	entity_key TEXT NOT NULL,
	field      TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entity_key, field)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id                   TEXT PRIMARY KEY,
	entity_key           TEXT NOT NULL,
	field                TEXT NOT NULL,
	primary_source_id    TEXT NOT NULL,
	primary_value        JSONB,
	comparison_source_id TEXT NOT NULL,
	comparison_value     JSONB,
	severity             TEXT NOT NULL,
	similarity           DOUBLE PRECISION NOT NULL DEFAULT 0,
	resolved             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS response_cache (
	source_id  TEXT NOT NULL,
	entity_key TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_id, entity_key)
);

CREATE TABLE IF NOT EXISTS verification_history (
	id                BIGSERIAL PRIMARY KEY,
	entity_key        TEXT NOT NULL,
	verified_at       TIMESTAMPTZ NOT NULL,
	sources_checked   JSONB NOT NULL,
	alignment_score   DOUBLE PRECISION NOT NULL,
	confidence_before DOUBLE PRECISION NOT NULL,
	confidence_after  DOUBLE PRECISION NOT NULL,
	conflicts_found   INTEGER NOT NULL,
	needs_review      BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts(entity_key);
CREATE INDEX IF NOT EXISTS idx_conflicts_resolved ON conflicts(resolved);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_verification_entity ON verification_history(entity_key);
`

func (s *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresRepository) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresRepository) GetResolvedRecord(ctx context.Context, entityKey string) (*model.ResolvedRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM resolved_records WHERE entity_key = $1`, entityKey,
	).Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", entityKey)
	}

	var record model.ResolvedRecord
	if err := json.Unmarshal(recordJSON, &record); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal record %s", entityKey)
	}
	return &record, nil
}

func (s *PostgresRepository) UpsertResolvedRecord(ctx context.Context, record *model.ResolvedRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO resolved_records (entity_key, record, confidence, needs_review, review_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (entity_key) DO UPDATE SET
			record = EXCLUDED.record,
			confidence = EXCLUDED.confidence,
			needs_review = EXCLUDED.needs_review,
			review_reason = EXCLUDED.review_reason,
			updated_at = now()`,
		record.Key.String(), recordJSON, record.Confidence,
		record.NeedsManualReview, record.ReviewReason,
	)
	return eris.Wrapf(err, "postgres: upsert record %s", record.Key.String())
}

func (s *PostgresRepository) GetProvenance(ctx context.Context, entityKey string) (map[model.FieldName]model.ProvenanceEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field, source_id, confidence, fetched_at FROM provenance WHERE entity_key = $1`,
		entityKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get provenance %s", entityKey)
	}
	defer rows.Close()

	entries := make(map[model.FieldName]model.ProvenanceEntry)
	for rows.Next() {
		var e model.ProvenanceEntry
		if err := rows.Scan(&e.Field, &e.SourceID, &e.Confidence, &e.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		entries[e.Field] = e
	}
	return entries, eris.Wrap(rows.Err(), "postgres: provenance rows")
}

func (s *PostgresRepository) UpsertProvenance(ctx context.Context, entityKey string, entries map[model.FieldName]model.ProvenanceEntry) error {
	for _, e := range entries {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO provenance (entity_key, field, source_id, confidence, fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (entity_key, field) DO UPDATE SET
				source_id = EXCLUDED.source_id,
				confidence = EXCLUDED.confidence,
				fetched_at = EXCLUDED.fetched_at`,
			entityKey, string(e.Field), e.SourceID, e.Confidence, e.FetchedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert provenance %s/%s", entityKey, e.Field)
		}
	}
	return nil
}

func (s *PostgresRepository) UpsertConflict(ctx context.Context, conflict model.ConflictRecord) error {
	primaryJSON, err := json.Marshal(conflict.PrimaryValue)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal primary value")
	}
	comparisonJSON, err := json.Marshal(conflict.ComparisonValue)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal comparison value")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conflicts (id, entity_key, field, primary_source_id, primary_value,
			comparison_source_id, comparison_value, severity, similarity, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET resolved = EXCLUDED.resolved`,
		conflict.ID, conflict.Key.String(), string(conflict.Field),
		conflict.PrimarySourceID, primaryJSON,
		conflict.ComparisonSourceID, comparisonJSON,
		string(conflict.Severity), conflict.Similarity,
		conflict.Resolved, conflict.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert conflict %s", conflict.ID)
}

func (s *PostgresRepository) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.ConflictRecord, error) {
	query := `SELECT id, entity_key, field, primary_source_id, primary_value,
		comparison_source_id, comparison_value, severity, similarity, resolved, created_at
		FROM conflicts WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.EntityKey != "" {
		query += ` AND entity_key = ` + arg(filter.EntityKey)
	}
	if filter.Severity != "" {
		query += ` AND severity = ` + arg(string(filter.Severity))
	}
	if filter.Unresolved {
		query += ` AND resolved = FALSE`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.ConflictRecord
	for rows.Next() {
		var (
			c              model.ConflictRecord
			entityKey      string
			field          string
			primaryJSON    []byte
			comparisonJSON []byte
			severity       string
		)
		if err := rows.Scan(&c.ID, &entityKey, &field, &c.PrimarySourceID, &primaryJSON,
			&c.ComparisonSourceID, &comparisonJSON, &severity, &c.Similarity,
			&c.Resolved, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict")
		}
		c.Key = model.ParseEntityKey(entityKey)
		c.Field = model.FieldName(field)
		c.Severity = model.ConflictSeverity(severity)
		_ = json.Unmarshal(primaryJSON, &c.PrimaryValue)
		_ = json.Unmarshal(comparisonJSON, &c.ComparisonValue)
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "postgres: conflict rows")
}

func (s *PostgresRepository) ResolveConflict(ctx context.Context, conflictID string) (string, error) {
	var entityKey string
	err := s.pool.QueryRow(ctx,
		`UPDATE conflicts SET resolved = TRUE WHERE id = $1 RETURNING entity_key`, conflictID,
	).Scan(&entityKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Errorf("store: conflict %s not found", conflictID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: resolve conflict %s", conflictID)
	}
	return entityKey, nil
}

func (s *PostgresRepository) GetCacheEntry(ctx context.Context, sourceID, entityKey string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT source_id, entity_key, payload, fetched_at, expires_at
		 FROM response_cache WHERE source_id = $1 AND entity_key = $2`,
		sourceID, entityKey,
	).Scan(&entry.SourceID, &entry.EntityKey, &entry.Payload, &entry.FetchedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cache %s/%s", sourceID, entityKey)
	}
	return &entry, nil
}

func (s *PostgresRepository) UpsertCacheEntry(ctx context.Context, entry model.CacheEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO response_cache (source_id, entity_key, payload, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, entity_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at`,
		entry.SourceID, entry.EntityKey, entry.Payload,
		entry.FetchedAt.UTC(), entry.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert cache %s/%s", entry.SourceID, entry.EntityKey)
}

func (s *PostgresRepository) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM response_cache WHERE expires_at <= $1`, now.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresRepository) CountCacheEntries(ctx context.Context, now time.Time) (total, expired int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= $1 THEN 1 ELSE 0 END), 0)
		 FROM response_cache`, now.UTC(),
	).Scan(&total, &expired)
	return total, expired, eris.Wrap(err, "postgres: count cache")
}

func (s *PostgresRepository) AppendVerificationHistory(ctx context.Context, entry model.VerificationEntry) error {
	sourcesJSON, err := json.Marshal(entry.SourcesChecked)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources checked")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO verification_history (entity_key, verified_at, sources_checked,
			alignment_score, confidence_before, confidence_after, conflicts_found, needs_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Key.String(), entry.VerifiedAt.UTC(), sourcesJSON,
		entry.AlignmentScore, entry.ConfidenceBefore, entry.ConfidenceAfter,
		entry.ConflictsFound, entry.NeedsReview,
	)
	return eris.Wrapf(err, "postgres: append verification %s", entry.Key.String())
}

func (s *PostgresRepository) ListVerificationHistory(ctx context.Context, entityKey string, limit int) ([]model.VerificationEntry, error) {
	query := `SELECT entity_key, verified_at, sources_checked, alignment_score,
		confidence_before, confidence_after, conflicts_found, needs_review
		FROM verification_history WHERE entity_key = $1 ORDER BY verified_at DESC`
	args := []any{entityKey}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list verification %s", entityKey)
	}
	defer rows.Close()

	var entries []model.VerificationEntry
	for rows.Next() {
		var (
			e           model.VerificationEntry
			key         string
			sourcesJSON []byte
		)
		if err := rows.Scan(&key, &e.VerifiedAt, &sourcesJSON, &e.AlignmentScore,
			&e.ConfidenceBefore, &e.ConfidenceAfter, &e.ConflictsFound, &e.NeedsReview); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification")
		}
		e.Key = model.ParseEntityKey(key)
		_ = json.Unmarshal(sourcesJSON, &e.SourcesChecked)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: verification rows")
}
