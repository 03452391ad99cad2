package state

import (
	"sort"
	"sync"
)

// State is the shared marker mapping threaded through one pipeline run.
// Writers merge under an exclusive lock held only for the merge itself;
// readers take a copy under the same lock, so a partially applied merge is
// never observable.
type State struct {
	mu     sync.RWMutex
	values map[string]string
	seq    uint64
}

// New creates an empty State.
func New() *State {
	return &State{values: make(map[string]string)}
}

// NewFrom creates a State seeded with values, used when resuming a run.
func NewFrom(values map[string]string) *State {
	s := New()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Merge overwrites each key in updates. Concurrent merges are serialized, so
// the last merge to acquire the lock wins per key. Merging the same mapping
// twice leaves the same result as merging it once. It returns the sequence
// number assigned to this merge, or 0 when updates is empty.
func (s *State) Merge(updates map[string]string) uint64 {
	if len(updates) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range updates {
		s.values[k] = v
	}
	s.seq++
	return s.seq
}

// Snapshot returns a copy of the current mapping.
func (s *State) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns the value for key.
func (s *State) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns the sorted key set.
func (s *State) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
