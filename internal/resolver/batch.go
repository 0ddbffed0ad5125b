package resolver

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// BatchItem is one entity queued for resolution.
type BatchItem struct {
	Key    model.EntityKey   `json:"key"`
	Fields []model.FieldName `json:"fields"`
}

// BatchSummary reports batch totals.
type BatchSummary struct {
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	NeedsReview int64 `json:"needs_review"`
}

// ResolveBatch resolves independent entities on a bounded worker pool.
// There is no ordering guarantee between entities. Individual failures
// are logged and counted, never aborting the batch; cancellation takes
// effect between entities, letting in-progress resolutions finish their
// current adapter call.
func (e *Engine) ResolveBatch(ctx context.Context, items []BatchItem, concurrency int, opts Options, persist func(context.Context, *model.ResolutionResult) error) (BatchSummary, error) {
	if concurrency <= 0 {
		concurrency = 20
	}

	zap.L().Info("resolving batch",
		zap.Int("entities", len(items)),
		zap.Int("concurrency", concurrency),
	)

	var succeeded, failed, needsReview atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // cancelled between entities
			}
			log := zap.L().With(zap.String("entity", item.Key.String()))

			result, err := e.Resolve(gctx, item.Key, item.Fields, opts)
			if err != nil {
				failed.Add(1)
				log.Error("resolution failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			if persist != nil {
				if err := persist(gctx, result); err != nil {
					failed.Add(1)
					log.Error("persist failed, entity can be retried", zap.Error(err))
					return nil
				}
			}

			succeeded.Add(1)
			if result.NeedsManualReview {
				needsReview.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()

	summary := BatchSummary{
		Succeeded:   succeeded.Load(),
		Failed:      failed.Load(),
		NeedsReview: needsReview.Load(),
	}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Int64("needs_review", summary.NeedsReview),
	)
	return summary, err
}
