package model

import "time"

// CacheEntry is one persisted adapter response, keyed by (source, entity).
// The payload is immutable; a refresh replaces the entry wholesale.
type CacheEntry struct {
	SourceID  string    `json:"source_id"`
	EntityKey string    `json:"entity_key"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry must be treated as a miss at the
// given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// RunStats carries per-run counters for logging and the verification log.
type RunStats struct {
	AdaptersTried   int      `json:"adapters_tried"`
	CacheHits       int      `json:"cache_hits"`
	CacheMisses     int      `json:"cache_misses"`
	Accepted        int      `json:"accepted"`
	Rejected        int      `json:"rejected"`
	Retries         int      `json:"retries"`
	DisabledSources []string `json:"disabled_sources,omitempty"`
}

// ResolutionResult is what the engine hands back to the caller: the
// record itself plus its provenance, any conflicts raised against
// comparison sources, and run bookkeeping. The result is always returned
// best-effort, even when every source failed.
type ResolutionResult struct {
	Record     *ResolvedRecord               `json:"record"`
	Provenance map[FieldName]ProvenanceEntry `json:"provenance"`
	Conflicts  []ConflictRecord              `json:"conflicts,omitempty"`
	State      ResolutionState               `json:"state"`
	// AlignmentScore is the fraction of comparison checks that agreed
	// with the accepted value, in [0,1]. 1 when no checks ran.
	AlignmentScore float64 `json:"alignment_score"`
	// ConfidenceBefore is the stored record's overall confidence at the
	// start of the run, 0 for a first resolution.
	ConfidenceBefore  float64  `json:"confidence_before"`
	NeedsManualReview bool     `json:"needs_manual_review"`
	ReviewReason      string   `json:"review_reason,omitempty"`
	Stats             RunStats `json:"stats"`
}
