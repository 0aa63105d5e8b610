// Package corridor selects the signals ahead of an ambulance and drives them
// through the priority state machine, one position update at a time.
package corridor

import (
	"sort"

	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/internal/domain/telemetry"
	"github.com/amb/amb/pkg/geo"
)

// RouteSource supplies the static catalog: destination routes and signal
// positions.
type RouteSource interface {
	Route(destinationID string) ([]string, bool)
	SignalPosition(id string) (geo.Point, bool)
}

// PositionSource supplies the latest telemetry sample per vehicle.
type PositionSource interface {
	Latest(vehicleID string) (telemetry.Sample, bool)
	VehicleIDs() []string
}

// TripSource supplies per-vehicle trip data: the current destination and the
// severity of the active trip.
type TripSource interface {
	ActiveDestination(vehicleID string) (string, bool)
	ActiveSeverity(vehicleID string) (signal.Severity, bool)
}

// passedDistanceKm: a signal closer than this is treated as already passed.
const passedDistanceKm = 0.3

// Selector finds the next unvisited signals on a vehicle's assigned route.
type Selector struct {
	routes    RouteSource
	positions PositionSource
	trips     TripSource
}

func NewSelector(routes RouteSource, positions PositionSource, trips TripSource) *Selector {
	return &Selector{routes: routes, positions: positions, trips: trips}
}

// RouteAhead returns up to maxAhead signal ids upstream of the vehicle on its
// destination route. A vehicle with no position sample or no route assignment
// gets an empty result; that is a normal state, not an error.
func (s *Selector) RouteAhead(vehicleID string, maxAhead int) []string {
	sample, ok := s.positions.Latest(vehicleID)
	if !ok {
		return nil
	}
	destination, ok := s.trips.ActiveDestination(vehicleID)
	if !ok {
		return nil
	}
	routeSignals, ok := s.routes.Route(destination)
	if !ok {
		return nil
	}

	type indexed struct {
		index  int
		distKm float64
	}
	var distances []indexed
	for i, sigID := range routeSignals {
		pos, ok := s.routes.SignalPosition(sigID)
		if !ok {
			continue
		}
		distances = append(distances, indexed{index: i, distKm: geo.DistanceKm(sample.Position, pos)})
	}
	if len(distances) == 0 {
		return nil
	}

	sort.Slice(distances, func(i, j int) bool { return distances[i].distKm < distances[j].distKm })

	start := distances[0].index
	if distances[0].distKm < passedDistanceKm {
		// Close enough that the vehicle has likely passed it already.
		start++
	}
	if start >= len(routeSignals) {
		return nil
	}

	end := start + maxAhead
	if end > len(routeSignals) {
		end = len(routeSignals)
	}
	return append([]string(nil), routeSignals[start:end]...)
}
