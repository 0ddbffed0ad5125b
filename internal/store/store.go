// Package store persists resolution output: resolved records, provenance,
// conflicts, the response cache and the verification history.
package store

import (
	"context"
	"time"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// ConflictFilter specifies criteria for listing conflicts.
type ConflictFilter struct {
	EntityKey  string                 `json:"entity_key,omitempty"`
	Severity   model.ConflictSeverity `json:"severity,omitempty"`
	Unresolved bool                   `json:"unresolved,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
}

// Repository defines the persistence interface the engine produces to.
// Conflict and verification tables are append-only; records and
// provenance are upserted per entity.
type Repository interface {
	// Resolved records
	GetResolvedRecord(ctx context.Context, entityKey string) (*model.ResolvedRecord, error)
	UpsertResolvedRecord(ctx context.Context, record *model.ResolvedRecord) error

	// Provenance
	GetProvenance(ctx context.Context, entityKey string) (map[model.FieldName]model.ProvenanceEntry, error)
	UpsertProvenance(ctx context.Context, entityKey string, entries map[model.FieldName]model.ProvenanceEntry) error

	// Conflicts
	UpsertConflict(ctx context.Context, conflict model.ConflictRecord) error
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.ConflictRecord, error)
	// ResolveConflict marks the conflict resolved and returns the entity
	// key it belongs to, so callers can re-derive the record's review
	// flag.
	ResolveConflict(ctx context.Context, conflictID string) (entityKey string, err error)

	// Response cache
	GetCacheEntry(ctx context.Context, sourceID, entityKey string) (*model.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry model.CacheEntry) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error)
	CountCacheEntries(ctx context.Context, now time.Time) (total, expired int, err error)

	// Verification history
	AppendVerificationHistory(ctx context.Context, entry model.VerificationEntry) error
	ListVerificationHistory(ctx context.Context, entityKey string, limit int) ([]model.VerificationEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
