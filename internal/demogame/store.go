package demogame

import (
	"sync"

	"pulsenet/pkg/netcore"
)

// Store is a bounded in-memory state repository implementing
// netcore.StateStore, grounded on original_source/pygase's
// GameStateStore: a full current-state snapshot plus a bounded cache of
// the updates that produced it, folded forward on every push.
type Store struct {
	mu      sync.Mutex
	current *GameStateUpdate
	cache   []netcore.Update
}

// NewStore seeds an empty store at time order 0.
func NewStore() *Store {
	return &Store{
		current: NewUpdate(0),
		cache:   []netcore.Update{NewUpdate(0)},
	}
}

// CurrentStateUpdate returns the full folded state as of the latest push.
func (s *Store) CurrentStateUpdate() netcore.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// UpdateCache returns a snapshot of the bounded update history.
func (s *Store) UpdateCache() []netcore.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]netcore.Update, len(s.cache))
	copy(out, s.cache)
	return out
}

// Push appends update to the cache, evicting the oldest entry past
// netcore.UpdateCacheSize, and folds it into the current snapshot.
func (s *Store) Push(update *GameStateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append(s.cache, update)
	if len(s.cache) > netcore.UpdateCacheSize {
		s.cache = s.cache[1:]
	}
	merged := s.current.Merge(update)
	s.current = merged.(*GameStateUpdate)
}
