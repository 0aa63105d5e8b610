// Package telemetry tracks the latest position sample per ambulance. The
// corridor engine only ever reads the newest sample; older samples are not
// retained.
package telemetry

import (
	"sync"
	"time"

	"github.com/amb/amb/pkg/geo"
)

// Sample is one vehicle position update. The engine reads these and never
// mutates them.
type Sample struct {
	VehicleID  string    `json:"vehicle_id"`
	Position   geo.Point `json:"position"`
	SpeedKmh   float64   `json:"speed_kmh"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store holds the latest sample per vehicle.
type Store struct {
	mu     sync.RWMutex
	latest map[string]Sample
}

func NewStore() *Store {
	return &Store{latest: make(map[string]Sample)}
}

// Update overwrites the latest sample for the vehicle. A zero RecordedAt is
// stamped with the current time.
func (s *Store) Update(sample Sample) {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	s.mu.Lock()
	s.latest[sample.VehicleID] = sample
	s.mu.Unlock()
}

// Latest returns the newest sample for the vehicle, if one exists.
func (s *Store) Latest(vehicleID string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.latest[vehicleID]
	return sample, ok
}

// VehicleIDs returns every vehicle with a known position.
func (s *Store) VehicleIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.latest))
	for id := range s.latest {
		ids = append(ids, id)
	}
	return ids
}
