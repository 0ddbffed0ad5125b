package resolver

import "github.com/filmgrid/enrich-cli/internal/model"

// Combine finalizes a record's overall confidence and per-field
// breakdown over the requested field set. Unresolved fields contribute 0.
// A record where fewer than half the requested fields resolved is tagged
// low-coverage so callers can schedule an enrichment retry.
func Combine(record *model.ResolvedRecord, requested []model.FieldName) {
	record.Breakdown = make(map[model.FieldName]model.FieldScore, len(record.Fields))

	if len(requested) == 0 {
		record.Confidence = 0
		record.LowCoverage = false
		return
	}

	var sum float64
	resolved := 0
	for _, f := range requested {
		fv, ok := record.Fields[f]
		if !ok {
			continue
		}
		resolved++
		sum += fv.Confidence
		record.Breakdown[f] = model.FieldScore{
			Confidence: fv.Confidence,
			SourceID:   fv.SourceID,
		}
	}

	record.Confidence = sum / float64(len(requested))
	record.LowCoverage = resolved*2 < len(requested)
}
