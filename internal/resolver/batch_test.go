package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/source"
)

func TestResolveBatch(t *testing.T) {
	responses := make(map[string]map[model.FieldName]any)
	var items []BatchItem
	for i := 0; i < 10; i++ {
		key := model.EntityKey{Type: model.EntityFilm, ID: fmt.Sprintf("tt%04d", i)}
		responses[key.String()] = map[model.FieldName]any{"director": fmt.Sprintf("Director %d", i)}
		items = append(items, BatchItem{Key: key, Fields: []model.FieldName{"director"}})
	}

	reg := source.NewRegistry()
	reg.Register(source.NewStatic("tmdb", source.PoolPrimary, 1, 0.95,
		[]model.FieldName{"director"}, responses))
	repo := newFakeRepo()
	e := newTestEngine(reg, repo)

	persist := func(ctx context.Context, result *model.ResolutionResult) error {
		return Persist(ctx, repo, result)
	}

	summary, err := e.ResolveBatch(context.Background(), items, 4, Options{}, persist)
	require.NoError(t, err)

	assert.Equal(t, int64(10), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, int64(0), summary.NeedsReview)
	assert.Len(t, repo.records, 10)
	assert.Len(t, repo.history, 10)
}

func TestResolveBatchPersistFailureCounted(t *testing.T) {
	key := model.EntityKey{Type: model.EntityFilm, ID: "tt0001"}
	reg := source.NewRegistry()
	reg.Register(source.NewStatic("tmdb", source.PoolPrimary, 1, 0.95,
		[]model.FieldName{"director"},
		map[string]map[model.FieldName]any{
			key.String(): {"director": "Michael Mann"},
		}))
	e := newTestEngine(reg, nil)

	failing := func(context.Context, *model.ResolutionResult) error {
		return eris.New("disk full")
	}

	summary, err := e.ResolveBatch(context.Background(),
		[]BatchItem{{Key: key, Fields: []model.FieldName{"director"}}}, 2, Options{}, failing)
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Failed)
}

func TestResolveBatchNilPersist(t *testing.T) {
	key := model.EntityKey{Type: model.EntityFilm, ID: "tt0001"}
	reg := source.NewRegistry()
	reg.Register(source.NewStatic("tmdb", source.PoolPrimary, 1, 0.95,
		[]model.FieldName{"director"},
		map[string]map[model.FieldName]any{
			key.String(): {"director": "Michael Mann"},
		}))
	e := newTestEngine(reg, nil)

	summary, err := e.ResolveBatch(context.Background(),
		[]BatchItem{{Key: key, Fields: []model.FieldName{"director"}}}, 1, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Succeeded)
}
