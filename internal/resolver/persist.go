package resolver

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/store"
)

// Persist writes a resolution result through the repository: the record,
// its provenance map, every conflict raised, and one verification
// history row. A failed write surfaces as an error so the caller can
// retry the entity later; the in-memory result stays intact and usable
// either way.
func Persist(ctx context.Context, repo store.Repository, result *model.ResolutionResult) error {
	record := result.Record
	entityKey := record.Key.String()

	if err := repo.UpsertResolvedRecord(ctx, record); err != nil {
		return eris.Wrapf(err, "persist: record %s", entityKey)
	}
	if err := repo.UpsertProvenance(ctx, entityKey, result.Provenance); err != nil {
		return eris.Wrapf(err, "persist: provenance %s", entityKey)
	}
	for _, c := range result.Conflicts {
		if err := repo.UpsertConflict(ctx, c); err != nil {
			return eris.Wrapf(err, "persist: conflict %s", c.ID)
		}
	}

	entry := model.VerificationEntry{
		Key:              record.Key,
		VerifiedAt:       record.LastVerifiedAt,
		SourcesChecked:   record.Sources,
		AlignmentScore:   result.AlignmentScore,
		ConfidenceBefore: result.ConfidenceBefore,
		ConfidenceAfter:  record.Confidence,
		ConflictsFound:   len(result.Conflicts),
		NeedsReview:      result.NeedsManualReview,
	}
	if err := repo.AppendVerificationHistory(ctx, entry); err != nil {
		return eris.Wrapf(err, "persist: verification history %s", entityKey)
	}
	return nil
}
