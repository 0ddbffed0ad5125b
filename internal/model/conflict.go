package model

import "time"

// ConflictSeverity grades how strongly a comparison source disagrees with
// the accepted value.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Rank orders severities for threshold comparisons (low < medium < high).
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// ConflictRecord captures a disagreement between the accepted value for a
// field and the signal from a comparison-only source. Created only by the
// conflict detector, never by the merge rule. Resolution happens outside
// the engine: a reviewer sets Resolved.
type ConflictRecord struct {
	ID                 string           `json:"id"`
	Key                EntityKey        `json:"key"`
	Field              FieldName        `json:"field"`
	PrimarySourceID    string           `json:"primary_source_id"`
	PrimaryValue       any              `json:"primary_value"`
	ComparisonSourceID string           `json:"comparison_source_id"`
	ComparisonValue    any              `json:"comparison_value"`
	Severity           ConflictSeverity `json:"severity"`
	Similarity         float64          `json:"similarity"`
	Resolved           bool             `json:"resolved"`
	CreatedAt          time.Time        `json:"created_at"`
}

// VerificationEntry is one row of the append-only verification history
// written after each resolution run.
type VerificationEntry struct {
	Key              EntityKey `json:"key"`
	VerifiedAt       time.Time `json:"verified_at"`
	SourcesChecked   []string  `json:"sources_checked"`
	AlignmentScore   float64   `json:"alignment_score"`
	ConfidenceBefore float64   `json:"confidence_before"`
	ConfidenceAfter  float64   `json:"confidence_after"`
	ConflictsFound   int       `json:"conflicts_found"`
	NeedsReview      bool      `json:"needs_review"`
}
