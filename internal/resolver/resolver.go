// Package resolver implements the waterfall resolution engine: it drives
// source adapters in priority order through the cache and rate limiter,
// merges accepted candidates into a resolved record, finalizes confidence
// scores and runs conflict detection against comparison-only sources.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/cache"
	"github.com/filmgrid/enrich-cli/internal/conflict"
	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/ratelimit"
	"github.com/filmgrid/enrich-cli/internal/schema"
	"github.com/filmgrid/enrich-cli/internal/source"
	"github.com/filmgrid/enrich-cli/internal/store"
)

// Config wires the engine's collaborators. Registry, Cache and Limiter
// are required; Sources and Repository are optional (defaults apply and
// prior state seeding is skipped when absent).
type Config struct {
	Registry   *source.Registry
	Cache      *cache.Cache
	Limiter    *ratelimit.Limiter
	Sources    *source.Config
	Repository store.Repository
	Thresholds conflict.Thresholds

	// StopEarlyThreshold: a requested field counts as filled once its
	// accepted confidence reaches this value. Default: 0.8.
	StopEarlyThreshold float64
	// ConfidenceFloor: records ending below this overall confidence are
	// flagged for review. Default: 0.5.
	ConfidenceFloor float64
	// RetryBackoff is the base delay before the single rate-limit retry.
	// Default: 2s.
	RetryBackoff time.Duration
}

// Options tunes one Resolve call.
type Options struct {
	// MinAcceptConfidence rejects candidates below this outright, before
	// the merge comparison.
	MinAcceptConfidence float64
	// MaxAdaptersTried caps primary adapter calls. 0 = unlimited.
	MaxAdaptersTried int
	// ForceRefresh bypasses the response cache for this run.
	ForceRefresh bool
	// AllowDowngrade starts from an empty record instead of seeding the
	// stored one, explicitly permitting confidence to drop. This is the
	// only path that lowers previously accepted confidence.
	AllowDowngrade bool
}

// Engine is the multi-source field resolution engine. One engine holds
// its own cache, limiter and adapter registry; there is no ambient
// process-wide state.
type Engine struct {
	cfg        Config
	provenance *ProvenanceStore
	now        func() time.Time
	fixedNow   *time.Time
}

// New creates an engine. Zero-valued tunables get their documented
// defaults.
func New(cfg Config) *Engine {
	if cfg.StopEarlyThreshold <= 0 {
		cfg.StopEarlyThreshold = 0.8
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.Thresholds == (conflict.Thresholds{}) {
		cfg.Thresholds = conflict.DefaultThresholds()
	}
	return &Engine{
		cfg:        cfg,
		provenance: NewProvenanceStore(),
		now:        time.Now,
	}
}

// WithNow sets a fixed clock for deterministic tests.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.now = func() time.Time { return t }
	e.fixedNow = &t
	return e
}

// Provenance exposes the engine's provenance bookkeeping for audit.
func (e *Engine) Provenance() *ProvenanceStore {
	return e.provenance
}

// Resolve runs the waterfall for one entity and the requested field set.
// It always returns a best-effort result: even when every source fails
// the record comes back empty with confidence 0 and the review flag set.
// The returned error is reserved for context cancellation before any
// work happened.
func (e *Engine) Resolve(ctx context.Context, key model.EntityKey, requested []model.FieldName, opts Options) (*model.ResolutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("entity", key.String()))
	reg := schema.ForType(key.Type)
	requestedSet := make(map[model.FieldName]bool, len(requested))
	for _, f := range requested {
		requestedSet[f] = true
	}

	record := model.NewResolvedRecord(key)
	var stats model.RunStats
	confidenceBefore := e.seed(ctx, record, log, opts)

	state := model.StatePending
	disabled := make(map[string]bool)
	missing := record.MissingFields(requested, e.cfg.StopEarlyThreshold)

	tried := 0
	for _, adapter := range e.cfg.Registry.Primary() {
		if len(missing) == 0 {
			break
		}
		if opts.MaxAdaptersTried > 0 && tried >= opts.MaxAdaptersTried {
			break
		}
		if disabled[adapter.Name()] || !providesAny(adapter, missing) {
			continue
		}

		tried++
		stats.AdaptersTried++
		state = model.StatePartiallyResolved

		candidates, err := e.fetch(ctx, adapter, key, opts.ForceRefresh, &stats)
		if err != nil {
			e.recordFailure(adapter, err, disabled, &stats, log)
			continue
		}

		e.merge(record, key, candidates, requestedSet, reg, opts, &stats, log)
		missing = record.MissingFields(requested, e.cfg.StopEarlyThreshold)
	}

	if len(missing) == 0 {
		state = model.StateFullyResolved
	} else {
		state = model.StateExhausted
	}

	Combine(record, requested)

	// Conflict detection runs only once a terminal state is reached.
	comparisons := e.fetchComparisons(ctx, key, requestedSet, opts, disabled, &stats, log)
	detector := conflict.NewDetector(reg, e.cfg.Thresholds)
	if e.fixedNow != nil {
		detector.WithNow(*e.fixedNow)
	}
	conflicts, align := detector.Check(record, comparisons)

	reasons := e.reviewReasons(record, conflicts, state)
	record.NeedsManualReview = len(reasons) > 0
	record.ReviewReason = strings.Join(reasons, "; ")
	record.LastVerifiedAt = e.now()

	result := &model.ResolutionResult{
		Record:            record,
		Provenance:        e.provenance.Get(key),
		Conflicts:         conflicts,
		State:             state,
		AlignmentScore:    align.Score(),
		ConfidenceBefore:  confidenceBefore,
		NeedsManualReview: record.NeedsManualReview,
		ReviewReason:      record.ReviewReason,
		Stats:             stats,
	}

	log.Info("resolution complete",
		zap.String("state", string(state)),
		zap.Float64("confidence_before", confidenceBefore),
		zap.Float64("confidence", record.Confidence),
		zap.Int("fields_resolved", len(record.Breakdown)),
		zap.Int("fields_requested", len(requested)),
		zap.String("sources", record.SourceTrail()),
		zap.Int("conflicts", len(conflicts)),
		zap.Bool("needs_review", record.NeedsManualReview),
	)

	return result, nil
}

// seed copies the stored record's accepted fields into the working
// record so re-resolution can only raise confidence. Skipped when the
// caller explicitly allows a downgrade.
func (e *Engine) seed(ctx context.Context, record *model.ResolvedRecord, log *zap.Logger, opts Options) float64 {
	if e.cfg.Repository == nil || opts.AllowDowngrade {
		return 0
	}
	prior, err := e.cfg.Repository.GetResolvedRecord(ctx, record.Key.String())
	if err != nil {
		log.Warn("prior record load failed, resolving from scratch", zap.Error(err))
		return 0
	}
	if prior == nil {
		return 0
	}
	for f, fv := range prior.Fields {
		record.Fields[f] = fv
		e.provenance.Record(record.Key, model.ProvenanceEntry{
			Field:      f,
			SourceID:   fv.SourceID,
			Confidence: fv.Confidence,
			FetchedAt:  fv.FetchedAt,
		})
	}
	record.Sources = append(record.Sources, prior.Sources...)
	return prior.Confidence
}

// merge applies the acceptance rule to one adapter's candidates: a
// candidate wins its field iff its confidence is strictly higher than
// the current one (absent counts as 0). Accepting updates the record,
// the provenance store and the sources audit list.
func (e *Engine) merge(record *model.ResolvedRecord, key model.EntityKey, candidates []model.Candidate, requestedSet map[model.FieldName]bool, reg *schema.Registry, opts Options, stats *model.RunStats, log *zap.Logger) {
	for _, c := range candidates {
		if !requestedSet[c.Field] {
			continue
		}

		value := c.Value
		if reg != nil {
			coerced, err := reg.Coerce(c.Field, c.Value)
			if err != nil {
				// Parse failure drops this field only; the rest of the
				// response is still usable.
				stats.Rejected++
				log.Debug("candidate rejected by schema",
					zap.String("source", c.SourceID),
					zap.String("field", string(c.Field)),
					zap.Error(err),
				)
				continue
			}
			value = coerced
		}

		if c.Confidence < opts.MinAcceptConfidence {
			stats.Rejected++
			continue
		}
		if c.Confidence <= record.FieldConfidence(c.Field) {
			stats.Rejected++
			continue
		}

		record.Fields[c.Field] = model.ResolvedField{
			Value:      value,
			Confidence: c.Confidence,
			SourceID:   c.SourceID,
			FetchedAt:  c.FetchedAt,
		}
		record.AddSource(c.SourceID)
		e.provenance.Record(key, model.ProvenanceEntry{
			Field:      c.Field,
			SourceID:   c.SourceID,
			Confidence: c.Confidence,
			FetchedAt:  c.FetchedAt,
		})
		stats.Accepted++
	}
}

// fetch serves one adapter call through the cache and rate limiter. On a
// cache miss the live call runs under the source's timeout with a single
// rate-limit retry.
func (e *Engine) fetch(ctx context.Context, adapter source.Adapter, key model.EntityKey, forceRefresh bool, stats *model.RunStats) ([]model.Candidate, error) {
	name := adapter.Name()
	entityKey := key.String()

	if !forceRefresh {
		if payload, ok := e.cfg.Cache.Get(ctx, name, entityKey); ok {
			var candidates []model.Candidate
			if err := json.Unmarshal(payload, &candidates); err == nil {
				stats.CacheHits++
				return candidates, nil
			}
			zap.L().Warn("cache: corrupt payload, refetching",
				zap.String("source", name),
				zap.String("entity", entityKey),
			)
		}
		stats.CacheMisses++
	}

	timeout := e.sourceTimeout(name)
	candidates, err := ratelimit.DoVal(ctx, ratelimit.RetryConfig{
		Backoff:        e.cfg.RetryBackoff,
		JitterFraction: 0.25,
		ShouldRetry:    source.IsRateLimited,
		OnRetry: func(err error) {
			stats.Retries++
			zap.L().Warn("source rate limited, retrying once",
				zap.String("source", name),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) ([]model.Candidate, error) {
		// The in-flight slot is held per attempt, not across the retry
		// backoff: a throttled source sleeping must not occupy
		// batch-wide concurrency.
		release, err := e.cfg.Limiter.Acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		defer release()

		fctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return adapter.Fetch(fctx, key)
	})
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(candidates); merr == nil {
		e.cfg.Cache.Put(ctx, name, entityKey, payload, e.sourceTTL(name))
	}
	return candidates, nil
}

// fetchComparisons collects requested-field candidates from the
// comparison pool. Comparison sources go through the same cache, limiter
// and failure handling, but their candidates never reach the merge rule.
func (e *Engine) fetchComparisons(ctx context.Context, key model.EntityKey, requestedSet map[model.FieldName]bool, opts Options, disabled map[string]bool, stats *model.RunStats, log *zap.Logger) []model.Candidate {
	var comparisons []model.Candidate
	for _, adapter := range e.cfg.Registry.Comparison() {
		if disabled[adapter.Name()] {
			continue
		}
		provides := false
		for f := range requestedSet {
			if source.CanProvide(adapter, f) {
				provides = true
				break
			}
		}
		if !provides {
			continue
		}

		candidates, err := e.fetch(ctx, adapter, key, opts.ForceRefresh, stats)
		if err != nil {
			e.recordFailure(adapter, err, disabled, stats, log)
			continue
		}
		for _, c := range candidates {
			if requestedSet[c.Field] {
				comparisons = append(comparisons, c)
			}
		}
	}
	return comparisons
}

func (e *Engine) recordFailure(adapter source.Adapter, err error, disabled map[string]bool, stats *model.RunStats, log *zap.Logger) {
	kind := source.KindOf(err)
	if kind == source.FailAuth {
		disabled[adapter.Name()] = true
		stats.DisabledSources = append(stats.DisabledSources, adapter.Name())
		log.Warn("source disabled for remainder of run",
			zap.String("source", adapter.Name()),
			zap.Error(err),
		)
		return
	}
	log.Warn("source fetch failed, skipping",
		zap.String("source", adapter.Name()),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

func (e *Engine) reviewReasons(record *model.ResolvedRecord, conflicts []model.ConflictRecord, state model.ResolutionState) []string {
	var reasons []string

	if len(record.Fields) == 0 {
		reasons = append(reasons, "no sources available")
	}

	var highFields []string
	for _, c := range conflicts {
		if c.Severity == model.SeverityHigh && !c.Resolved {
			highFields = append(highFields, string(c.Field))
		}
	}
	if len(highFields) > 0 {
		reasons = append(reasons, fmt.Sprintf("high-severity conflict on %s", strings.Join(highFields, ", ")))
	}

	if state == model.StateExhausted && record.Confidence < e.cfg.ConfidenceFloor && len(record.Fields) > 0 {
		reasons = append(reasons, fmt.Sprintf("overall confidence %.2f below floor %.2f", record.Confidence, e.cfg.ConfidenceFloor))
	}

	return reasons
}

func (e *Engine) sourceTTL(name string) time.Duration {
	if e.cfg.Sources != nil {
		if spec, ok := e.cfg.Sources.Spec(name); ok {
			return time.Duration(spec.CacheTTLHours) * time.Hour
		}
		return time.Duration(e.cfg.Sources.Defaults.CacheTTLHours) * time.Hour
	}
	return 24 * time.Hour
}

func (e *Engine) sourceTimeout(name string) time.Duration {
	if e.cfg.Sources != nil {
		if spec, ok := e.cfg.Sources.Spec(name); ok {
			return time.Duration(spec.TimeoutSecs) * time.Second
		}
		return time.Duration(e.cfg.Sources.Defaults.TimeoutSecs) * time.Second
	}
	return 15 * time.Second
}

func providesAny(a source.Adapter, fields []model.FieldName) bool {
	for _, f := range fields {
		if source.CanProvide(a, f) {
			return true
		}
	}
	return false
}
