package resolver

import (
	"sync"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// ProvenanceStore keeps the per-field record of which source supplied
// each accepted value. It is written only as a side effect of an
// accepted merge, so its content is consistent with the resolved record
// by construction. Update-on-accept: re-accepting a field replaces its
// entry rather than appending a duplicate.
type ProvenanceStore struct {
	mu      sync.RWMutex
	entries map[string]map[model.FieldName]model.ProvenanceEntry
}

// NewProvenanceStore creates an empty store.
func NewProvenanceStore() *ProvenanceStore {
	return &ProvenanceStore{
		entries: make(map[string]map[model.FieldName]model.ProvenanceEntry),
	}
}

// Record stores the provenance entry for (entity, field).
func (s *ProvenanceStore) Record(key model.EntityKey, entry model.ProvenanceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if s.entries[k] == nil {
		s.entries[k] = make(map[model.FieldName]model.ProvenanceEntry)
	}
	s.entries[k][entry.Field] = entry
}

// Get returns a copy of the provenance map for an entity. The copy keeps
// callers from mutating bookkeeping owned by the store.
func (s *ProvenanceStore) Get(key model.EntityKey) map[model.FieldName]model.ProvenanceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.FieldName]model.ProvenanceEntry)
	for f, e := range s.entries[key.String()] {
		out[f] = e
	}
	return out
}
