package corridor

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/pkg/geo"
)

const (
	// MaxCorridorSignals caps how many signals ahead are driven at once.
	MaxCorridorSignals = 3

	// fallbackRadiusKm bounds the distance-based fallback selection.
	fallbackRadiusKm = 2.0

	// relevantDistanceKm: anything farther is behind the vehicle or
	// irrelevant and is dropped from the corridor.
	relevantDistanceKm = 1.5

	// defaultCompetitorSeverity is assumed for vehicles whose active trip
	// severity is unknown.
	defaultCompetitorSeverity = signal.SeverityModerate
)

// Arbiter decides which vehicle holds a contested signal.
type Arbiter interface {
	Resolve(resourceID string, candidates []string, severities map[string]signal.Severity) (string, bool)
}

// Planner is the orchestration entry point, invoked once per inbound vehicle
// position update. All durable effects are mutations to the signal store, the
// resource locks and the decision log performed by the components it calls.
type Planner struct {
	selector  *Selector
	routes    RouteSource
	positions PositionSource
	trips     TripSource
	signals   *signal.Store
	arbiter   Arbiter
	log       zerolog.Logger
}

func NewPlanner(
	selector *Selector,
	routes RouteSource,
	positions PositionSource,
	trips TripSource,
	signals *signal.Store,
	arbiter Arbiter,
	log zerolog.Logger,
) *Planner {
	return &Planner{
		selector:  selector,
		routes:    routes,
		positions: positions,
		trips:     trips,
		signals:   signals,
		arbiter:   arbiter,
		log:       log,
	}
}

// Activate runs the corridor pipeline for one vehicle and returns the active
// corridor: the filtered, route-ordered signal ids selected for priority
// treatment. An invalid severity is a validation error and mutates nothing;
// missing position or route data yields an empty corridor.
func (p *Planner) Activate(vehicleID, severity string) ([]string, error) {
	sev, err := signal.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}

	sample, ok := p.positions.Latest(vehicleID)
	if !ok {
		return []string{}, nil
	}

	candidates := p.selector.RouteAhead(vehicleID, MaxCorridorSignals)
	if len(candidates) == 0 {
		candidates = p.fallbackByDistance(vehicleID, sample.Position)
	}

	// Drop signals beyond the relevance window.
	corridor := candidates[:0]
	for _, sigID := range candidates {
		pos, ok := p.routes.SignalPosition(sigID)
		if !ok {
			continue
		}
		if geo.DistanceKm(sample.Position, pos) > relevantDistanceKm {
			continue
		}
		corridor = append(corridor, sigID)
	}

	severities := p.competitorSeverities(vehicleID, sev)

	// Chain-reaction gating compares against the states as of this update,
	// not states produced earlier in the same pass: CRITICAL corridors light
	// up one intersection per update, never all at once.
	wasActive := make([]bool, len(corridor))
	for i, sigID := range corridor {
		if sig, ok := p.signals.Get(sigID); ok {
			wasActive[i] = sig.Active()
		}
	}

	for i, sigID := range corridor {
		pos, _ := p.routes.SignalPosition(sigID)
		sig := p.signals.GetOrCreate(sigID, pos)

		// Already committed to a vehicle; no double activation.
		if sig.Active() {
			continue
		}

		winner, contested := p.arbiter.Resolve(sigID, p.positions.VehicleIDs(), severities)
		outcome := signal.ArbitrationNone
		if contested {
			if winner == vehicleID {
				outcome = signal.ArbitrationWon
			} else {
				outcome = signal.ArbitrationLost
			}
		}

		// A CRITICAL corridor signal after the first only activates once its
		// predecessor was already committed before this update.
		if sev == signal.SeverityCritical && i > 0 && !wasActive[i-1] {
			continue
		}

		distKm := geo.DistanceKm(sample.Position, sig.Position())
		state, err := sig.Transition(vehicleID, distKm, sev, outcome)
		if err != nil {
			return nil, err
		}
		p.log.Debug().
			Str("vehicle_id", vehicleID).
			Str("signal_id", sigID).
			Str("state", string(state)).
			Str("arbitration", outcome.String()).
			Float64("distance_km", distKm).
			Msg("corridor transition")
	}

	return corridor, nil
}

// fallbackByDistance is used when route-ahead selection yields nothing (for
// example the vehicle is off its assigned route): the nearest route signals
// within the fallback radius, capped at MaxCorridorSignals.
func (p *Planner) fallbackByDistance(vehicleID string, from geo.Point) []string {
	destination, ok := p.trips.ActiveDestination(vehicleID)
	if !ok {
		return nil
	}
	routeSignals, ok := p.routes.Route(destination)
	if !ok {
		return nil
	}

	type scored struct {
		id     string
		distKm float64
	}
	var nearby []scored
	for _, sigID := range routeSignals {
		pos, ok := p.routes.SignalPosition(sigID)
		if !ok {
			continue
		}
		nearby = append(nearby, scored{id: sigID, distKm: geo.DistanceKm(from, pos)})
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].distKm < nearby[j].distKm })

	var out []string
	for _, s := range nearby {
		if len(out) == MaxCorridorSignals {
			break
		}
		if s.distKm < fallbackRadiusKm {
			out = append(out, s.id)
		}
	}
	return out
}

// competitorSeverities maps every tracked vehicle to its arbitration
// severity: the requested severity for the calling vehicle, the active trip
// severity for others, MODERATE when no trip is known.
func (p *Planner) competitorSeverities(vehicleID string, sev signal.Severity) map[string]signal.Severity {
	severities := make(map[string]signal.Severity)
	for _, id := range p.positions.VehicleIDs() {
		if id == vehicleID {
			severities[id] = sev
			continue
		}
		if tripSev, ok := p.trips.ActiveSeverity(id); ok {
			severities[id] = tripSev
		} else {
			severities[id] = defaultCompetitorSeverity
		}
	}
	return severities
}

// SignalStatus is one corridor entry in a status projection.
type SignalStatus struct {
	SignalID   string       `json:"signal_id"`
	State      signal.State `json:"state"`
	Reason     string       `json:"reason"`
	DistanceKm float64      `json:"distance_km"`
}

// Status describes a vehicle's current corridor for dashboards.
type Status struct {
	VehicleID      string         `json:"vehicle_id"`
	DestinationID  string         `json:"destination_id,omitempty"`
	FullRoute      []string       `json:"full_route,omitempty"`
	ActiveCorridor []string       `json:"active_corridor"`
	Signals        []SignalStatus `json:"signals"`
}

// Status projects the vehicle's corridor without driving any transitions.
func (p *Planner) Status(vehicleID string) Status {
	st := Status{VehicleID: vehicleID, ActiveCorridor: []string{}}

	if dest, ok := p.trips.ActiveDestination(vehicleID); ok {
		st.DestinationID = dest
		if fullRoute, ok := p.routes.Route(dest); ok {
			st.FullRoute = fullRoute
		}
	}

	sample, ok := p.positions.Latest(vehicleID)
	if !ok {
		return st
	}

	corridor := p.selector.RouteAhead(vehicleID, MaxCorridorSignals)
	if len(corridor) == 0 {
		corridor = p.fallbackByDistance(vehicleID, sample.Position)
	}
	for _, sigID := range corridor {
		pos, ok := p.routes.SignalPosition(sigID)
		if !ok {
			continue
		}
		distKm := geo.DistanceKm(sample.Position, pos)
		if distKm > relevantDistanceKm {
			continue
		}
		st.ActiveCorridor = append(st.ActiveCorridor, sigID)

		entry := SignalStatus{SignalID: sigID, State: signal.StateNormal, Reason: "idle", DistanceKm: distKm}
		if sig, ok := p.signals.Get(sigID); ok {
			entry.State = sig.State()
			if hist := sig.History(); len(hist) > 0 {
				entry.Reason = hist[len(hist)-1].Reason
			}
		}
		st.Signals = append(st.Signals, entry)
	}
	return st
}
