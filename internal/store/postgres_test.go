package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// newMockPostgresRepo creates a PostgresRepository backed by pgxmock for
// unit testing.
func newMockPostgresRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresRepository{pool: mock}, mock
}

func TestPostgresGetResolvedRecord_NotFound(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	mock.ExpectQuery(`SELECT record FROM resolved_records WHERE entity_key = \$1`).
		WithArgs("film:tt999").
		WillReturnError(pgx.ErrNoRows)

	record, err := repo.GetResolvedRecord(context.Background(), "film:tt999")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetResolvedRecord(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	stored := model.NewResolvedRecord(model.EntityKey{Type: model.EntityFilm, ID: "tt0113277"})
	stored.Fields["director"] = model.ResolvedField{Value: "Michael Mann", Confidence: 0.95, SourceID: "tmdb"}
	stored.Confidence = 0.95
	recordJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT record FROM resolved_records`).
		WithArgs("film:tt0113277").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(recordJSON))

	record, err := repo.GetResolvedRecord(context.Background(), "film:tt0113277")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 0.95, record.Confidence)
	assert.Equal(t, "Michael Mann", record.Fields["director"].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertResolvedRecord(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	record := model.NewResolvedRecord(model.EntityKey{Type: model.EntityFilm, ID: "tt0113277"})
	record.Confidence = 0.9

	mock.ExpectExec(`INSERT INTO resolved_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertResolvedRecord(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveConflict(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	mock.ExpectQuery(`UPDATE conflicts SET resolved = TRUE WHERE id = \$1 RETURNING entity_key`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"entity_key"}).AddRow("film:tt0113277"))

	entityKey, err := repo.ResolveConflict(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "film:tt0113277", entityKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveConflict_NotFound(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	mock.ExpectQuery(`UPDATE conflicts SET resolved = TRUE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ResolveConflict(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListConflictsFilters(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "entity_key", "field", "primary_source_id", "primary_value",
		"comparison_source_id", "comparison_value", "severity", "similarity",
		"resolved", "created_at",
	}).AddRow(
		"c-1", "film:tt0113277", "director", "tmdb", []byte(`"Michael Mann"`),
		"letterboxd", []byte(`"Kathryn Bigelow"`), "high", 0.2, false, created,
	)

	mock.ExpectQuery(`FROM conflicts WHERE 1=1 AND entity_key = \$1 AND severity = \$2 AND resolved = FALSE ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("film:tt0113277", "high", 10).
		WillReturnRows(rows)

	conflicts, err := repo.ListConflicts(context.Background(), ConflictFilter{
		EntityKey:  "film:tt0113277",
		Severity:   model.SeverityHigh,
		Unresolved: true,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c-1", conflicts[0].ID)
	assert.Equal(t, model.SeverityHigh, conflicts[0].Severity)
	assert.Equal(t, "Michael Mann", conflicts[0].PrimaryValue)
	assert.Equal(t, model.EntityKey{Type: model.EntityFilm, ID: "tt0113277"}, conflicts[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCacheEntryRoundTrip(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO response_cache`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := model.CacheEntry{
		SourceID:  "tmdb",
		EntityKey: "film:tt0113277",
		Payload:   []byte("payload"),
		FetchedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.UpsertCacheEntry(context.Background(), entry))

	mock.ExpectQuery(`FROM response_cache WHERE source_id = \$1 AND entity_key = \$2`).
		WithArgs("tmdb", "film:tt0113277").
		WillReturnRows(pgxmock.NewRows([]string{"source_id", "entity_key", "payload", "fetched_at", "expires_at"}).
			AddRow("tmdb", "film:tt0113277", []byte("payload"), now, now.Add(24*time.Hour)))

	got, err := repo.GetCacheEntry(context.Background(), "tmdb", "film:tt0113277")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("payload"), got.Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpiredCacheEntries(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	mock.ExpectExec(`DELETE FROM response_cache WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := repo.DeleteExpiredCacheEntries(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendVerificationHistory(t *testing.T) {
	repo, mock := newMockPostgresRepo(t)

	mock.ExpectExec(`INSERT INTO verification_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := model.VerificationEntry{
		Key:             model.EntityKey{Type: model.EntityFilm, ID: "tt0113277"},
		VerifiedAt:      time.Now(),
		SourcesChecked:  []string{"tmdb"},
		AlignmentScore:  1,
		ConfidenceAfter: 0.95,
	}
	require.NoError(t, repo.AppendVerificationHistory(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
