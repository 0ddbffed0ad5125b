package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filmgrid/enrich-cli/internal/model"
)

func TestCombine(t *testing.T) {
	r := model.NewResolvedRecord(heatKey)
	r.Fields["director"] = model.ResolvedField{Value: "Michael Mann", Confidence: 0.95, SourceID: "tmdb"}
	r.Fields["poster_url"] = model.ResolvedField{Value: "https://x/p.jpg", Confidence: 0.85, SourceID: "omdb"}

	Combine(r, []model.FieldName{"director", "poster_url"})

	assert.InDelta(t, 0.90, r.Confidence, 1e-9)
	assert.False(t, r.LowCoverage)
	assert.Equal(t, model.FieldScore{Confidence: 0.95, SourceID: "tmdb"}, r.Breakdown["director"])
	assert.Equal(t, model.FieldScore{Confidence: 0.85, SourceID: "omdb"}, r.Breakdown["poster_url"])
}

func TestCombineUnresolvedContributeZero(t *testing.T) {
	r := model.NewResolvedRecord(heatKey)
	r.Fields["director"] = model.ResolvedField{Value: "Michael Mann", Confidence: 0.95, SourceID: "tmdb"}

	Combine(r, []model.FieldName{"director", "tagline", "overview"})

	assert.InDelta(t, 0.95/3, r.Confidence, 1e-9)
	assert.True(t, r.LowCoverage)
	assert.NotContains(t, r.Breakdown, model.FieldName("tagline"))
}

func TestCombineEmptyRequest(t *testing.T) {
	r := model.NewResolvedRecord(heatKey)
	Combine(r, nil)
	assert.Equal(t, 0.0, r.Confidence)
	assert.False(t, r.LowCoverage)
}

func TestProvenanceStoreUpdateOnAccept(t *testing.T) {
	s := NewProvenanceStore()
	s.Record(heatKey, model.ProvenanceEntry{Field: "director", SourceID: "omdb", Confidence: 0.85})
	s.Record(heatKey, model.ProvenanceEntry{Field: "director", SourceID: "tmdb", Confidence: 0.95})

	got := s.Get(heatKey)
	assert.Len(t, got, 1)
	assert.Equal(t, "tmdb", got["director"].SourceID)

	// mutating the copy leaves the store untouched
	delete(got, "director")
	assert.Len(t, s.Get(heatKey), 1)
}
