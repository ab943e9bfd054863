package state

import "sync"

// FilterStore keeps the selection filters chosen by the operator, keyed by
// the selector property name (e.g. "Input#InputNo"). Values are not
// validated here; derivation clamps unknown values.
type FilterStore struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewFilterStore creates an empty FilterStore
func NewFilterStore() *FilterStore {
	return &FilterStore{values: make(map[string]string)}
}

// Set stores value for key. Last write wins.
func (s *FilterStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value stored for key
func (s *FilterStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key
func (s *FilterStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Snapshot returns a copy of all filters
func (s *FilterStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clear removes all filters
func (s *FilterStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}
