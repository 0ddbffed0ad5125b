// Package ratelimit bounds outbound request rate per source and caps
// total in-flight adapter calls across all concurrently resolving
// entities.
package ratelimit

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter combines per-source token buckets with a shared in-flight
// semaphore. Safe for concurrent use.
type Limiter struct {
	global *semaphore.Weighted

	mu           sync.Mutex
	perSource    map[string]*rate.Limiter
	defaultRPS   rate.Limit
	defaultBurst int
}

// New creates a limiter. maxInFlight caps concurrent adapter calls
// across the whole process; defaultRPS/defaultBurst shape the bucket for
// sources without an explicit Configure call.
func New(maxInFlight int64, defaultRPS float64, defaultBurst int) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = 20
	}
	if defaultRPS <= 0 {
		defaultRPS = 4
	}
	if defaultBurst <= 0 {
		defaultBurst = 4
	}
	return &Limiter{
		global:       semaphore.NewWeighted(maxInFlight),
		perSource:    make(map[string]*rate.Limiter),
		defaultRPS:   rate.Limit(defaultRPS),
		defaultBurst: defaultBurst,
	}
}

// Configure sets the token bucket for a named source, replacing any
// existing bucket.
func (l *Limiter) Configure(sourceID string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perSource[sourceID] = rate.NewLimiter(rate.Limit(rps), burst)
}

func (l *Limiter) limiterFor(sourceID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.perSource[sourceID]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.defaultRPS, l.defaultBurst)
	l.perSource[sourceID] = lim
	return lim
}

// Acquire blocks until a global slot and a source token are available,
// then returns a release func for the slot. Token waits while holding a
// global slot are bounded by the source's bucket shape.
func (l *Limiter) Acquire(ctx context.Context, sourceID string) (func(), error) {
	if err := l.global.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "ratelimit: acquire in-flight slot")
	}
	if err := l.limiterFor(sourceID).Wait(ctx); err != nil {
		l.global.Release(1)
		return nil, eris.Wrapf(err, "ratelimit: wait for %s token", sourceID)
	}
	return func() { l.global.Release(1) }, nil
}
