// Package schema declares which fields exist per entity type and what
// value kind each carries. The resolver validates candidates against the
// schema and the conflict detector picks its divergence measure from the
// declared kind.
package schema

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// ValueKind is the declared type of a field's value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindURL    ValueKind = "url"
	KindDate   ValueKind = "date" // ISO 8601 date string
)

// FieldSpec describes one resolvable field.
type FieldSpec struct {
	Name     model.FieldName `json:"name"`
	Kind     ValueKind       `json:"kind"`
	Required bool            `json:"required"`
	// MaxLength truncates string values when > 0.
	MaxLength int `json:"max_length,omitempty"`
}

// Registry is an indexed collection of field specs for one entity type.
type Registry struct {
	entityType model.EntityType
	specs      []FieldSpec
	byName     map[model.FieldName]*FieldSpec
}

// NewRegistry builds an indexed registry from the given specs.
func NewRegistry(t model.EntityType, specs []FieldSpec) *Registry {
	r := &Registry{
		entityType: t,
		specs:      specs,
		byName:     make(map[model.FieldName]*FieldSpec, len(specs)),
	}
	for i := range r.specs {
		r.byName[r.specs[i].Name] = &r.specs[i]
	}
	return r
}

// EntityType returns the entity type this registry describes.
func (r *Registry) EntityType() model.EntityType { return r.entityType }

// ByName returns the spec for a field, or nil when unknown.
func (r *Registry) ByName(name model.FieldName) *FieldSpec {
	return r.byName[name]
}

// Names returns all declared field names in declaration order.
func (r *Registry) Names() []model.FieldName {
	names := make([]model.FieldName, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.Name)
	}
	return names
}

// Coerce validates a raw candidate value against the field's declared
// kind and returns the cleaned value. Returns an error when the value
// cannot represent the declared kind; callers treat that as a parse
// failure for the field only.
func (r *Registry) Coerce(name model.FieldName, value any) (any, error) {
	spec := r.byName[name]
	if spec == nil {
		return nil, fmt.Errorf("schema: unknown field %q for %s", name, r.entityType)
	}
	if value == nil {
		return nil, fmt.Errorf("schema: nil value for %q", name)
	}

	switch spec.Kind {
	case KindString, KindDate:
		s := strings.TrimSpace(fmt.Sprintf("%v", value))
		if s == "" {
			return nil, fmt.Errorf("schema: empty value for %q", name)
		}
		if spec.MaxLength > 0 && len(s) > spec.MaxLength {
			s = s[:spec.MaxLength]
		}
		return s, nil

	case KindURL:
		s := strings.TrimSpace(fmt.Sprintf("%v", value))
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("schema: invalid url for %q: %v", name, value)
		}
		return u.String(), nil

	case KindInt:
		n, ok := toInt(value)
		if !ok {
			return nil, fmt.Errorf("schema: non-integer value for %q: %v", name, value)
		}
		return n, nil

	case KindFloat:
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("schema: non-numeric value for %q: %v", name, value)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("schema: unhandled kind %q", spec.Kind)
	}
}

func toInt(v any) (int64, bool) {
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
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
