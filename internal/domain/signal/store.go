package signal

import (
	"sync"

	"github.com/amb/amb/pkg/geo"
)

// Store owns every Signal in one engine instance. It is explicitly
// constructed and injected rather than kept as a process-wide registry, so
// multiple engines can coexist in tests without cross-contamination.
type Store struct {
	mu      sync.RWMutex
	signals map[string]*Signal
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{signals: make(map[string]*Signal)}
}

// Preload constructs signals for every catalog entry. Startup calls this so
// initialization is deterministic; GetOrCreate remains for signals referenced
// outside the catalog.
func (s *Store) Preload(positions map[string]geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pos := range positions {
		if _, ok := s.signals[id]; !ok {
			s.signals[id] = New(id, pos)
		}
	}
}

// GetOrCreate returns the signal with the given id, constructing it at the
// given position on first reference. Signals live for the process lifetime.
func (s *Store) GetOrCreate(id string, position geo.Point) *Signal {
	s.mu.RLock()
	sig, ok := s.signals[id]
	s.mu.RUnlock()
	if ok {
		return sig
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.signals[id]; ok {
		return sig
	}
	sig = New(id, position)
	s.signals[id] = sig
	return sig
}

// Get returns the signal with the given id, if it exists.
func (s *Store) Get(id string) (*Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	return sig, ok
}

// IDs returns the ids of every known signal.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.signals))
	for id := range s.signals {
		ids = append(ids, id)
	}
	return ids
}
