// Package conflict compares accepted field values against signals from
// comparison-only sources and grades the divergence. It never touches
// resolved values; its only outputs are conflict records and the review
// flag inputs.
package conflict

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/schema"
)

// Thresholds holds the tunable severity cutoffs. The defaults are
// documented choices, not ground truth; adjust per deployment.
type Thresholds struct {
	// StringHigh: normalized similarity below this is a high conflict.
	StringHigh float64 `yaml:"string_high" mapstructure:"string_high"`
	// StringMedium: similarity below this (but >= StringHigh) is medium.
	// At or above, the sources are considered in agreement.
	StringMedium float64 `yaml:"string_medium" mapstructure:"string_medium"`
	// FloatHigh / FloatMedium bound the relative numeric divergence.
	FloatHigh   float64 `yaml:"float_high" mapstructure:"float_high"`
	FloatMedium float64 `yaml:"float_medium" mapstructure:"float_medium"`
}

// DefaultThresholds returns the documented defaults. StringHigh sits at
// 0.8 so any string divergence below that similarity raises a
// high-severity conflict and pulls in a reviewer.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StringHigh:   0.8,
		StringMedium: 0.9,
		FloatHigh:    0.25,
		FloatMedium:  0.10,
	}
}

// Alignment summarizes how often comparison sources agreed with the
// accepted values.
type Alignment struct {
	Checks     int
	Agreements int
}

// Score returns the agreement fraction in [0,1]. With no checks the
// score is 1: nothing disputed the record.
func (a Alignment) Score() float64 {
	if a.Checks == 0 {
		return 1
	}
	return float64(a.Agreements) / float64(a.Checks)
}

// Detector grades divergence between accepted values and comparison
// candidates using the field schema to pick the measure.
type Detector struct {
	thresholds Thresholds
	reg        *schema.Registry
	now        func() time.Time
}

// NewDetector creates a detector for one entity type's schema.
func NewDetector(reg *schema.Registry, thresholds Thresholds) *Detector {
	return &Detector{
		thresholds: thresholds,
		reg:        reg,
		now:        time.Now,
	}
}

// WithNow sets a fixed clock for deterministic tests.
func (d *Detector) WithNow(t time.Time) *Detector {
	d.now = func() time.Time { return t }
	return d
}

// Check compares every resolved field against the comparison candidates
// for that field and returns one ConflictRecord per divergence at or
// above medium severity. Comparison candidates for unresolved fields are
// ignored: there is no accepted value to dispute.
func (d *Detector) Check(record *model.ResolvedRecord, comparisons []model.Candidate) ([]model.ConflictRecord, Alignment) {
	var conflicts []model.ConflictRecord
	var align Alignment

	for _, cand := range comparisons {
		accepted, ok := record.Fields[cand.Field]
		if !ok {
			continue
		}

		severity, similarity := d.grade(cand.Field, accepted.Value, cand.Value)
		align.Checks++
		if severity.Rank() < model.SeverityMedium.Rank() {
			align.Agreements++
			continue
		}

		conflicts = append(conflicts, model.ConflictRecord{
			ID:                 uuid.New().String(),
			Key:                record.Key,
			Field:              cand.Field,
			PrimarySourceID:    accepted.SourceID,
			PrimaryValue:       accepted.Value,
			ComparisonSourceID: cand.SourceID,
			ComparisonValue:    cand.Value,
			Severity:           severity,
			Similarity:         similarity,
			CreatedAt:          d.now(),
		})
	}

	return conflicts, align
}

// grade picks the divergence measure from the field's declared kind and
// maps it to a severity. Returns the severity and a similarity score in
// [0,1] (1 = identical).
func (d *Detector) grade(field model.FieldName, primary, comparison any) (model.ConflictSeverity, float64) {
	kind := schema.KindString
	if d.reg != nil {
		if spec := d.reg.ByName(field); spec != nil {
			kind = spec.Kind
		}
	}

	switch kind {
	case schema.KindInt:
		a, aok := asInt(primary)
		b, bok := asInt(comparison)
		if !aok || !bok {
			return d.gradeString(primary, comparison)
		}
		// Integer fields like release_year tolerate no delta at all: any
		// disagreement is worth a human look.
		if a == b {
			return model.SeverityLow, 1
		}
		return model.SeverityHigh, 0

	case schema.KindFloat:
		a, aok := asFloat(primary)
		b, bok := asFloat(comparison)
		if !aok || !bok {
			return d.gradeString(primary, comparison)
		}
		div := relativeDivergence(a, b)
		sim := 1 - math.Min(div, 1)
		switch {
		case div > d.thresholds.FloatHigh:
			return model.SeverityHigh, sim
		case div > d.thresholds.FloatMedium:
			return model.SeverityMedium, sim
		default:
			return model.SeverityLow, sim
		}

	case schema.KindDate:
		// Dates that differ in year are as serious as a wrong year
		// field; same-year drift is a medium signal.
		pa, pb := fmt.Sprintf("%v", primary), fmt.Sprintf("%v", comparison)
		if Normalize(pa) == Normalize(pb) {
			return model.SeverityLow, 1
		}
		if yearOf(pa) != yearOf(pb) {
			return model.SeverityHigh, 0
		}
		return model.SeverityMedium, 0.5

	default:
		return d.gradeString(primary, comparison)
	}
}

func (d *Detector) gradeString(primary, comparison any) (model.ConflictSeverity, float64) {
	sim := Similarity(fmt.Sprintf("%v", primary), fmt.Sprintf("%v", comparison))
	switch {
	case sim < d.thresholds.StringHigh:
		return model.SeverityHigh, sim
	case sim < d.thresholds.StringMedium:
		return model.SeverityMedium, sim
	default:
		return model.SeverityLow, sim
	}
}

func relativeDivergence(a, b float64) float64 {
	diff := math.Abs(a - b)
	if diff == 0 {
		return 0
	}
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return 1
	}
	return diff / base
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// yearOf extracts a leading 4-digit year from an ISO-style date string.
func yearOf(s string) string {
	if len(s) >= 4 {
		y := s[:4]
		if _, err := strconv.Atoi(y); err == nil {
			return y
		}
	}
	return s
}
