package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// SQLiteRepository implements Repository using modernc.org/sqlite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteRepository{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resolved_records (
	entity_key    TEXT PRIMARY KEY,
	record        TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	needs_review  INTEGER NOT NULL DEFAULT 0,
	review_reason TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS provenance (
	entity_key TEXT NOT NULL,
	field      TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	confidence REAL NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (entity_key, field)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id                   TEXT PRIMARY KEY,
	entity_key           TEXT NOT NULL,
	field                TEXT NOT NULL,
	primary_source_id    TEXT NOT NULL,
	primary_value        TEXT,
	comparison_source_id TEXT NOT NULL,
	comparison_value     TEXT,
	severity             TEXT NOT NULL,
	similarity           REAL NOT NULL DEFAULT 0,
	resolved             INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS response_cache (
	source_id  TEXT NOT NULL,
	entity_key TEXT NOT NULL,
	payload    BLOB NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (source_id, entity_key)
);

CREATE TABLE IF NOT EXISTS verification_history (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_key        TEXT NOT NULL,
	verified_at       DATETIME NOT NULL,
	sources_checked   TEXT NOT NULL,
	alignment_score   REAL NOT NULL,
	confidence_before REAL NOT NULL,
	confidence_after  REAL NOT NULL,
	conflicts_found   INTEGER NOT NULL,
	needs_review      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts(entity_key);
CREATE INDEX IF NOT EXISTS idx_conflicts_resolved ON conflicts(resolved);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_verification_entity ON verification_history(entity_key);
`

func (s *SQLiteRepository) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func (s *SQLiteRepository) GetResolvedRecord(ctx context.Context, entityKey string) (*model.ResolvedRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM resolved_records WHERE entity_key = ?`, entityKey,
	).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", entityKey)
	}

	var record model.ResolvedRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal record %s", entityKey)
	}
	return &record, nil
}

func (s *SQLiteRepository) UpsertResolvedRecord(ctx context.Context, record *model.ResolvedRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolved_records (entity_key, record, confidence, needs_review, review_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_key) DO UPDATE SET
			record = excluded.record,
			confidence = excluded.confidence,
			needs_review = excluded.needs_review,
			review_reason = excluded.review_reason,
			updated_at = excluded.updated_at`,
		record.Key.String(), string(recordJSON), record.Confidence,
		boolToInt(record.NeedsManualReview), record.ReviewReason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert record %s", record.Key.String())
}

func (s *SQLiteRepository) GetProvenance(ctx context.Context, entityKey string) (map[model.FieldName]model.ProvenanceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, source_id, confidence, fetched_at FROM provenance WHERE entity_key = ?`,
		entityKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get provenance %s", entityKey)
	}
	defer rows.Close()

	entries := make(map[model.FieldName]model.ProvenanceEntry)
	for rows.Next() {
		var e model.ProvenanceEntry
		if err := rows.Scan(&e.Field, &e.SourceID, &e.Confidence, &e.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		entries[e.Field] = e
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: provenance rows")
}

func (s *SQLiteRepository) UpsertProvenance(ctx context.Context, entityKey string, entries map[model.FieldName]model.ProvenanceEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin provenance tx")
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO provenance (entity_key, field, source_id, confidence, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity_key, field) DO UPDATE SET
				source_id = excluded.source_id,
				confidence = excluded.confidence,
				fetched_at = excluded.fetched_at`,
			entityKey, string(e.Field), e.SourceID, e.Confidence, e.FetchedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert provenance %s/%s", entityKey, e.Field)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit provenance")
}

func (s *SQLiteRepository) UpsertConflict(ctx context.Context, conflict model.ConflictRecord) error {
	primaryJSON, err := json.Marshal(conflict.PrimaryValue)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal primary value")
	}
	comparisonJSON, err := json.Marshal(conflict.ComparisonValue)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal comparison value")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, entity_key, field, primary_source_id, primary_value,
			comparison_source_id, comparison_value, severity, similarity, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved = excluded.resolved`,
		conflict.ID, conflict.Key.String(), string(conflict.Field),
		conflict.PrimarySourceID, string(primaryJSON),
		conflict.ComparisonSourceID, string(comparisonJSON),
		string(conflict.Severity), conflict.Similarity,
		boolToInt(conflict.Resolved), conflict.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert conflict %s", conflict.ID)
}

func (s *SQLiteRepository) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.ConflictRecord, error) {
	query := `SELECT id, entity_key, field, primary_source_id, primary_value,
		comparison_source_id, comparison_value, severity, similarity, resolved, created_at
		FROM conflicts WHERE 1=1`
	var args []any
	if filter.EntityKey != "" {
		query += ` AND entity_key = ?`
		args = append(args, filter.EntityKey)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Unresolved {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "sqlite: conflict rows")
}

func scanConflict(scan func(dest ...any) error) (model.ConflictRecord, error) {
	var (
		c              model.ConflictRecord
		entityKey      string
		field          string
		primaryJSON    string
		comparisonJSON string
		severity       string
		resolved       int
	)
	if err := scan(&c.ID, &entityKey, &field, &c.PrimarySourceID, &primaryJSON,
		&c.ComparisonSourceID, &comparisonJSON, &severity, &c.Similarity,
		&resolved, &c.CreatedAt); err != nil {
		return c, eris.Wrap(err, "store: scan conflict")
	}
	c.Key = model.ParseEntityKey(entityKey)
	c.Field = model.FieldName(field)
	c.Severity = model.ConflictSeverity(severity)
	c.Resolved = resolved != 0
	_ = json.Unmarshal([]byte(primaryJSON), &c.PrimaryValue)
	_ = json.Unmarshal([]byte(comparisonJSON), &c.ComparisonValue)
	return c, nil
}

func (s *SQLiteRepository) ResolveConflict(ctx context.Context, conflictID string) (string, error) {
	var entityKey string
	err := s.db.QueryRowContext(ctx,
		`UPDATE conflicts SET resolved = 1 WHERE id = ? RETURNING entity_key`, conflictID,
	).Scan(&entityKey)
	if err == sql.ErrNoRows {
		return "", eris.Errorf("store: conflict %s not found", conflictID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: resolve conflict %s", conflictID)
	}
	return entityKey, nil
}

func (s *SQLiteRepository) GetCacheEntry(ctx context.Context, sourceID, entityKey string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, entity_key, payload, fetched_at, expires_at
		 FROM response_cache WHERE source_id = ? AND entity_key = ?`,
		sourceID, entityKey,
	).Scan(&entry.SourceID, &entry.EntityKey, &entry.Payload, &entry.FetchedAt, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache %s/%s", sourceID, entityKey)
	}
	return &entry, nil
}

func (s *SQLiteRepository) UpsertCacheEntry(ctx context.Context, entry model.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_cache (source_id, entity_key, payload, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, entity_key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		entry.SourceID, entry.EntityKey, entry.Payload,
		entry.FetchedAt.UTC(), entry.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert cache %s/%s", entry.SourceID, entry.EntityKey)
}

func (s *SQLiteRepository) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at <= ?`, now.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteRepository) CountCacheEntries(ctx context.Context, now time.Time) (total, expired int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM response_cache`, now.UTC(),
	).Scan(&total, &expired)
	return total, expired, eris.Wrap(err, "sqlite: count cache")
}

func (s *SQLiteRepository) AppendVerificationHistory(ctx context.Context, entry model.VerificationEntry) error {
	sourcesJSON, err := json.Marshal(entry.SourcesChecked)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources checked")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_history (entity_key, verified_at, sources_checked,
			alignment_score, confidence_before, confidence_after, conflicts_found, needs_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Key.String(), entry.VerifiedAt.UTC(), string(sourcesJSON),
		entry.AlignmentScore, entry.ConfidenceBefore, entry.ConfidenceAfter,
		entry.ConflictsFound, boolToInt(entry.NeedsReview),
	)
	return eris.Wrapf(err, "sqlite: append verification %s", entry.Key.String())
}

func (s *SQLiteRepository) ListVerificationHistory(ctx context.Context, entityKey string, limit int) ([]model.VerificationEntry, error) {
	query := `SELECT entity_key, verified_at, sources_checked, alignment_score,
		confidence_before, confidence_after, conflicts_found, needs_review
		FROM verification_history WHERE entity_key = ? ORDER BY verified_at DESC`
	args := []any{entityKey}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list verification %s", entityKey)
	}
	defer rows.Close()

	var entries []model.VerificationEntry
	for rows.Next() {
		var (
			e           model.VerificationEntry
			key         string
			sourcesJSON string
			needsReview int
		)
		if err := rows.Scan(&key, &e.VerifiedAt, &sourcesJSON, &e.AlignmentScore,
			&e.ConfidenceBefore, &e.ConfidenceAfter, &e.ConflictsFound, &needsReview); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification")
		}
		e.Key = model.ParseEntityKey(key)
		e.NeedsReview = needsReview != 0
		_ = json.Unmarshal([]byte(sourcesJSON), &e.SourcesChecked)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: verification rows")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
