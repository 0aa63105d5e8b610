package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amb/amb/pkg/geo"
)

// Simulator drives fake GPS samples for a vehicle along a sequence of
// waypoints, for demos and local development. It feeds the same store the
// real ingest path writes to, so the corridor engine cannot tell the
// difference.
type Simulator struct {
	store  *Store
	log    zerolog.Logger
	onTick func(vehicleID string)

	mu   sync.Mutex
	runs map[string]*simRun
}

// simRun identifies one simulation goroutine, so a superseded run cleaning up
// after itself cannot remove its replacement's entry.
type simRun struct {
	cancel context.CancelFunc
}

func NewSimulator(store *Store, log zerolog.Logger) *Simulator {
	return &Simulator{
		store: store,
		log:   log,
		runs:  make(map[string]*simRun),
	}
}

// SetTickHook registers a callback invoked after every simulated sample.
// The server wires this to the corridor planner so each simulated position
// update drives the engine exactly like a real one.
func (s *Simulator) SetTickHook(fn func(vehicleID string)) {
	s.onTick = fn
}

// Start launches a simulation run for the vehicle. An existing run for the
// same vehicle is cancelled first. The run ends when the final waypoint is
// reached or the context is cancelled.
func (s *Simulator) Start(ctx context.Context, vehicleID string, waypoints []geo.Point, speedKmh float64, step time.Duration) error {
	if len(waypoints) < 2 {
		return fmt.Errorf("simulation needs at least 2 waypoints, got %d", len(waypoints))
	}
	if speedKmh <= 0 {
		return fmt.Errorf("speed must be positive, got %f", speedKmh)
	}
	if step <= 0 {
		return fmt.Errorf("step must be positive, got %s", step)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &simRun{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.runs[vehicleID]; ok {
		prev.cancel()
	}
	s.runs[vehicleID] = run
	s.mu.Unlock()

	s.store.Update(Sample{VehicleID: vehicleID, Position: waypoints[0], SpeedKmh: speedKmh})

	go s.run(runCtx, run, vehicleID, waypoints, speedKmh, step)
	return nil
}

func (s *Simulator) run(ctx context.Context, this *simRun, vehicleID string, waypoints []geo.Point, speedKmh float64, step time.Duration) {
	defer func() {
		s.mu.Lock()
		// A superseded run must not evict its replacement.
		if s.runs[vehicleID] == this {
			delete(s.runs, vehicleID)
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	segment := 0
	progress := 0.0
	stepKm := speedKmh * step.Hours()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		remaining := stepKm
		for remaining > 0 && segment < len(waypoints)-1 {
			// Segment lengths use great-circle distance: the simulator mimics a
			// real GPS feed and is not part of the engine's flat-earth contract.
			segLen := haversineKm(waypoints[segment], waypoints[segment+1])
			if segLen <= 0 {
				segment++
				progress = 0
				continue
			}
			left := (1 - progress) * segLen
			if remaining < left {
				progress += remaining / segLen
				remaining = 0
			} else {
				remaining -= left
				segment++
				progress = 0
			}
		}

		var pos geo.Point
		done := segment >= len(waypoints)-1
		if done {
			pos = waypoints[len(waypoints)-1]
		} else {
			pos = interpolate(waypoints[segment], waypoints[segment+1], progress)
		}

		s.store.Update(Sample{VehicleID: vehicleID, Position: pos, SpeedKmh: speedKmh})
		if s.onTick != nil {
			s.onTick(vehicleID)
		}

		if done {
			s.log.Info().Str("vehicle_id", vehicleID).Msg("simulation reached final waypoint")
			return
		}
	}
}

// Stop cancels a running simulation for the vehicle, if any.
func (s *Simulator) Stop(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[vehicleID]; ok {
		run.cancel()
		delete(s.runs, vehicleID)
	}
}

// Running reports whether a simulation is active for the vehicle.
func (s *Simulator) Running(vehicleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[vehicleID]
	return ok
}

func interpolate(a, b geo.Point, fraction float64) geo.Point {
	return geo.Point{
		Lat: a.Lat + (b.Lat-a.Lat)*fraction,
		Lng: a.Lng + (b.Lng-a.Lng)*fraction,
	}
}

func haversineKm(a, b geo.Point) float64 {
	const earthRadiusKm = 6371.0
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
