package model

import (
	"sort"
	"strings"
	"time"
)

// Candidate is one source's proposed value for one field. Candidates are
// ephemeral: they exist between an adapter call and the merge decision.
type Candidate struct {
	Field      FieldName `json:"field"`
	Value      any       `json:"value"`
	Confidence float64   `json:"confidence"`
	SourceID   string    `json:"source_id"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// ResolvedField is the currently accepted candidate for a field. It is
// mutated only by the merge rule: once set, it may be replaced only by a
// candidate of strictly higher confidence.
type ResolvedField struct {
	Value      any       `json:"value"`
	Confidence float64   `json:"confidence"`
	SourceID   string    `json:"source_id"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// FieldScore is one entry of a record's confidence breakdown.
type FieldScore struct {
	Confidence float64 `json:"confidence"`
	SourceID   string  `json:"source_id"`
}

// ResolvedRecord is the working (and persisted) record for one entity:
// the accepted field values plus overall scoring and review flags.
type ResolvedRecord struct {
	Key               EntityKey                   `json:"key"`
	Fields            map[FieldName]ResolvedField `json:"fields"`
	Confidence        float64                     `json:"confidence"`
	Breakdown         map[FieldName]FieldScore    `json:"confidence_breakdown"`
	Sources           []string                    `json:"sources"`
	LowCoverage       bool                        `json:"low_coverage,omitempty"`
	NeedsManualReview bool                        `json:"needs_manual_review"`
	ReviewReason      string                      `json:"review_reason,omitempty"`
	LastVerifiedAt    time.Time                   `json:"last_verified_at"`
}

// NewResolvedRecord creates an empty record for the given key.
func NewResolvedRecord(key EntityKey) *ResolvedRecord {
	return &ResolvedRecord{
		Key:       key,
		Fields:    make(map[FieldName]ResolvedField),
		Breakdown: make(map[FieldName]FieldScore),
	}
}

// FieldConfidence returns the accepted confidence for a field, or 0 when
// the field is unresolved. The merge rule treats an absent field as
// confidence 0.
func (r *ResolvedRecord) FieldConfidence(field FieldName) float64 {
	if fv, ok := r.Fields[field]; ok {
		return fv.Confidence
	}
	return 0
}

// AddSource appends a source ID to the audit list if not already present.
// Sources accumulate across accepts, so a record can show that multiple
// providers contributed ("tmdb+omdb").
func (r *ResolvedRecord) AddSource(sourceID string) {
	for _, s := range r.Sources {
		if s == sourceID {
			return
		}
	}
	r.Sources = append(r.Sources, sourceID)
}

// SourceTrail renders the audit list joined with "+", in acceptance order.
func (r *ResolvedRecord) SourceTrail() string {
	return strings.Join(r.Sources, "+")
}

// MissingFields returns the requested fields whose accepted confidence is
// below the given threshold, sorted for deterministic iteration.
func (r *ResolvedRecord) MissingFields(requested []FieldName, threshold float64) []FieldName {
	var missing []FieldName
	for _, f := range requested {
		if r.FieldConfidence(f) < threshold {
			missing = append(missing, f)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// ProvenanceEntry records which source supplied a field's accepted value.
// Derived data: always consistent with the owning ResolvedRecord.
type ProvenanceEntry struct {
	Field      FieldName `json:"field"`
	SourceID   string    `json:"source_id"`
	Confidence float64   `json:"confidence"`
	FetchedAt  time.Time `json:"fetched_at"`
}
