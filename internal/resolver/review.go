package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/store"
)

// RefreshReviewFlag re-derives a stored record's review flag after a
// conflict resolution: when no unresolved high-severity conflicts remain
// and the record's confidence sits at or above the floor, the flag is
// cleared and the record upserted. It never newly sets the flag. Returns
// the record as stored afterwards, or nil when the entity has none.
func RefreshReviewFlag(ctx context.Context, repo store.Repository, entityKey string, floor float64) (*model.ResolvedRecord, error) {
	record, err := repo.GetResolvedRecord(ctx, entityKey)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load record %s", entityKey)
	}
	if record == nil || !record.NeedsManualReview {
		return record, nil
	}

	highs, err := repo.ListConflicts(ctx, store.ConflictFilter{
		EntityKey:  entityKey,
		Severity:   model.SeverityHigh,
		Unresolved: true,
	})
	if err != nil {
		return record, eris.Wrapf(err, "review: list conflicts %s", entityKey)
	}

	var reasons []string
	if len(record.Fields) == 0 {
		reasons = append(reasons, "no sources available")
	}
	if len(highs) > 0 {
		fields := make([]string, 0, len(highs))
		for _, c := range highs {
			fields = append(fields, string(c.Field))
		}
		reasons = append(reasons, fmt.Sprintf("high-severity conflict on %s", strings.Join(fields, ", ")))
	}
	if record.Confidence < floor && len(record.Fields) > 0 {
		reasons = append(reasons, fmt.Sprintf("overall confidence %.2f below floor %.2f", record.Confidence, floor))
	}

	record.NeedsManualReview = len(reasons) > 0
	record.ReviewReason = strings.Join(reasons, "; ")

	if err := repo.UpsertResolvedRecord(ctx, record); err != nil {
		return record, eris.Wrapf(err, "review: upsert record %s", entityKey)
	}
	return record, nil
}
