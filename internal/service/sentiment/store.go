package sentiment

import (
	"sync/atomic"

	"aegisflow/internal/domain/models"
)

// Store holds the current SentimentContext. Updates replace the whole value
// (last-write-wins); readers never see a partial write.
type Store struct {
	v atomic.Value // models.SentimentContext
}

// NewStore creates a Store seeded with an initial context.
func NewStore(initial models.SentimentContext) *Store {
	s := &Store{}
	s.v.Store(initial)
	return s
}

// Snapshot returns the current sentiment context.
func (s *Store) Snapshot() models.SentimentContext {
	return s.v.Load().(models.SentimentContext)
}

// Update replaces the current context.
func (s *Store) Update(ctx models.SentimentContext) {
	s.v.Store(ctx)
}
