package source

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// StaticAdapter serves canned candidates from memory. Used by tests and
// by dry runs that exercise the full engine without network access.
type StaticAdapter struct {
	name           string
	priority       int
	baseConfidence float64
	pool           Pool
	fields         []model.FieldName
	responses      map[string]map[model.FieldName]any
	fail           FailureKind
	now            func() time.Time
}

// NewStatic builds a static adapter. responses maps EntityKey.String()
// to field values; every served candidate carries baseConfidence.
func NewStatic(name string, pool Pool, priority int, baseConfidence float64, fields []model.FieldName, responses map[string]map[model.FieldName]any) *StaticAdapter {
	return &StaticAdapter{
		name:           name,
		priority:       priority,
		baseConfidence: baseConfidence,
		pool:           pool,
		fields:         fields,
		responses:      responses,
		now:            time.Now,
	}
}

// WithFailure makes every Fetch return an AdapterError of the given kind.
func (a *StaticAdapter) WithFailure(kind FailureKind) *StaticAdapter {
	a.fail = kind
	return a
}

// WithNow sets a fixed clock for deterministic tests.
func (a *StaticAdapter) WithNow(t time.Time) *StaticAdapter {
	a.now = func() time.Time { return t }
	return a
}

func (a *StaticAdapter) Name() string              { return a.name }
func (a *StaticAdapter) Priority() int             { return a.priority }
func (a *StaticAdapter) BaseConfidence() float64   { return a.baseConfidence }
func (a *StaticAdapter) Pool() Pool                { return a.pool }
func (a *StaticAdapter) Fields() []model.FieldName { return a.fields }

func (a *StaticAdapter) Fetch(_ context.Context, key model.EntityKey) ([]model.Candidate, error) {
	if a.fail != "" {
		return nil, &AdapterError{SourceID: a.name, Kind: a.fail, Err: eris.New("fixture failure")}
	}
	values, ok := a.responses[key.String()]
	if !ok {
		return nil, nil
	}
	fetched := a.now()
	candidates := make([]model.Candidate, 0, len(values))
	for _, f := range a.fields {
		v, ok := values[f]
		if !ok {
			continue
		}
		candidates = append(candidates, model.Candidate{
			Field:      f,
			Value:      v,
			Confidence: a.baseConfidence,
			SourceID:   a.name,
			FetchedAt:  fetched,
		})
	}
	return candidates, nil
}

// fixtureFile is the on-disk shape for LoadFixtures.
type fixtureFile struct {
	Sources []struct {
		Name      string                             `json:"name"`
		Pool      Pool                               `json:"pool"`
		Priority  int                                `json:"priority"`
		Tier      string                             `json:"tier"`
		Fields    []model.FieldName                  `json:"fields"`
		Responses map[string]map[model.FieldName]any `json:"responses"`
		Fail      FailureKind                        `json:"fail,omitempty"`
	} `json:"sources"`
}

// LoadFixtures reads static adapters from a JSON file and registers them.
// Tier names resolve through cfg; unknown tiers degrade to the scrape
// tier.
func LoadFixtures(path string, cfg *Config, registry *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "source: read fixtures %s", path)
	}

	var ff fixtureFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return eris.Wrap(err, "source: unmarshal fixtures")
	}

	for _, s := range ff.Sources {
		pool := s.Pool
		if pool == "" {
			pool = PoolPrimary
		}
		a := NewStatic(s.Name, pool, s.Priority, cfg.TierConfidence(s.Tier), s.Fields, s.Responses)
		if s.Fail != "" {
			a.WithFailure(s.Fail)
		}
		registry.Register(a)
	}
	return nil
}
