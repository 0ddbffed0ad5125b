package model

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of record being enriched.
type EntityType string

const (
	EntityFilm   EntityType = "film"
	EntityPerson EntityType = "person"
)

// EntityKey identifies the subject of a resolution run. Either a stable
// provider-agnostic ID is known, or the entity is addressed by title and
// year. Keys are immutable once constructed.
type EntityKey struct {
	Type  EntityType `json:"type"`
	ID    string     `json:"id,omitempty"`
	Title string     `json:"title,omitempty"`
	Year  int        `json:"year,omitempty"`
}

// String returns the canonical key form used for cache and store lookups.
func (k EntityKey) String() string {
	if k.ID != "" {
		return fmt.Sprintf("%s:%s", k.Type, k.ID)
	}
	if k.Year > 0 {
		return fmt.Sprintf("%s:%s (%d)", k.Type, strings.ToLower(k.Title), k.Year)
	}
	return fmt.Sprintf("%s:%s", k.Type, strings.ToLower(k.Title))
}

// IsZero reports whether the key carries no identifying information.
func (k EntityKey) IsZero() bool {
	return k.ID == "" && k.Title == ""
}

// ParseEntityKey inverts String for keys in canonical form. A trailing
// " (yyyy)" is read back as the year; otherwise the remainder is treated
// as a stable ID when it contains no spaces, and as a title when it does.
func ParseEntityKey(s string) EntityKey {
	typ, rest, ok := strings.Cut(s, ":")
	if !ok {
		return EntityKey{ID: s}
	}
	k := EntityKey{Type: EntityType(typ)}
	if i := strings.LastIndex(rest, " ("); i > 0 && strings.HasSuffix(rest, ")") {
		var year int
		if _, err := fmt.Sscanf(rest[i:], " (%d)", &year); err == nil {
			k.Title = rest[:i]
			k.Year = year
			return k
		}
	}
	if strings.ContainsRune(rest, ' ') {
		k.Title = rest
	} else {
		k.ID = rest
	}
	return k
}

// FieldName identifies a single attribute being resolved, e.g. "director"
// or "poster_url". The set of valid names per entity type lives in the
// schema registry.
type FieldName string

// ResolutionState tracks where an entity sits in its resolution lifecycle.
type ResolutionState string

const (
	StatePending           ResolutionState = "pending"
	StatePartiallyResolved ResolutionState = "partially_resolved"
	StateFullyResolved     ResolutionState = "fully_resolved"
	// StateExhausted means every eligible source was tried and some
	// requested fields are still missing. Terminal and non-error.
	StateExhausted ResolutionState = "exhausted"
)

// Terminal reports whether no further adapter attempts will be made.
func (s ResolutionState) Terminal() bool {
	return s == StateFullyResolved || s == StateExhausted
}
