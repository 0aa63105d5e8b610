package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amb/amb/internal/domain/signal"
)

// CorridorActivator re-evaluates the priority corridor for one vehicle. The
// concrete implementation lives in the corridor package.
type CorridorActivator interface {
	Activate(vehicleID, severity string) ([]string, error)
}

// TxRunner runs fn with all repository access inside it bound to one
// transaction. The concrete implementation lives in the db package.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(context.Context) error) error
}

// Service owns emergencies, the trip lifecycle and the active-trip cache that
// feeds the corridor engine its destinations and severities.
type Service struct {
	emergencies EmergencyRepository
	trips       TripRepository
	registry    *Registry
	activator   CorridorActivator
	txr         TxRunner
	log         zerolog.Logger

	mu     sync.RWMutex
	active map[string]*Trip // ambulance id -> non-terminal trip
}

func NewService(emergencies EmergencyRepository, trips TripRepository, registry *Registry, log zerolog.Logger) *Service {
	return &Service{
		emergencies: emergencies,
		trips:       trips,
		registry:    registry,
		log:         log,
		active:      make(map[string]*Trip),
	}
}

// SetActivator attaches the corridor engine. Optional so the service can run
// in tests and tooling without one.
func (s *Service) SetActivator(a CorridorActivator) {
	s.activator = a
}

// SetTxRunner attaches transactional execution for multi-statement
// operations. Without one they run statement by statement.
func (s *Service) SetTxRunner(txr TxRunner) {
	s.txr = txr
}

func (s *Service) inTx(ctx context.Context, fn func(context.Context) error) error {
	if s.txr == nil {
		return fn(ctx)
	}
	return s.txr.RunInTx(ctx, fn)
}

// WarmActiveTrips loads every non-terminal trip into the cache. Called once
// at startup so corridors survive a restart.
func (s *Service) WarmActiveTrips(ctx context.Context) error {
	trips, err := s.trips.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("warm active trips: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trips {
		s.active[t.AmbulanceID] = t
	}
	return nil
}

// -- Emergencies --

func (s *Service) CreateEmergency(ctx context.Context, e *Emergency) error {
	if e.EmergencyType == "" {
		return fmt.Errorf("emergency_type is required")
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("severity is required")
	}
	return s.emergencies.Create(ctx, e)
}

func (s *Service) GetEmergency(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	return s.emergencies.GetByID(ctx, id)
}

func (s *Service) ListEmergencies(ctx context.Context, limit, offset int) ([]*Emergency, int, error) {
	return s.emergencies.List(ctx, limit, offset)
}

// -- Trips --

// CreateTrip dispatches an ambulance to an emergency. An ambulance carries at
// most one non-terminal trip.
func (s *Service) CreateTrip(ctx context.Context, t *Trip) error {
	if t.EmergencyID == uuid.Nil {
		return fmt.Errorf("emergency_id is required")
	}
	if _, ok := s.registry.Ambulance(t.AmbulanceID); !ok {
		return fmt.Errorf("unknown ambulance %q", t.AmbulanceID)
	}
	if _, ok := s.registry.Hospital(t.HospitalID); !ok {
		return fmt.Errorf("unknown hospital %q", t.HospitalID)
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("severity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[t.AmbulanceID]; ok {
		return fmt.Errorf("ambulance %s already on trip %s", t.AmbulanceID, existing.ID)
	}

	t.State = TripPending
	if err := s.trips.Create(ctx, t); err != nil {
		return err
	}
	s.active[t.AmbulanceID] = t

	s.log.Info().
		Str("trip_id", t.ID.String()).
		Str("ambulance_id", t.AmbulanceID).
		Str("hospital_id", t.HospitalID).
		Str("severity", t.Severity.String()).
		Msg("trip created")
	return nil
}

func (s *Service) GetTrip(ctx context.Context, id uuid.UUID) (*Trip, error) {
	return s.trips.GetByID(ctx, id)
}

func (s *Service) ListTrips(ctx context.Context, limit, offset int) ([]*Trip, int, error) {
	return s.trips.List(ctx, limit, offset)
}

func (s *Service) ListTripsByAmbulance(ctx context.Context, ambulanceID string, limit, offset int) ([]*Trip, int, error) {
	return s.trips.ListByAmbulance(ctx, ambulanceID, limit, offset)
}

// TransitionTrip moves a trip to the next lifecycle state. Reaching
// EN_ROUTE_TO_HOSPITAL or a terminal state re-evaluates the ambulance's
// corridor so signals are claimed or released promptly instead of waiting for
// the next GPS tick.
func (s *Service) TransitionTrip(ctx context.Context, id uuid.UUID, next TripState) (*Trip, error) {
	// Read, check and update share one transaction so a concurrent
	// transition cannot slip between them.
	var t *Trip
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.trips.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !t.State.CanTransition(next) {
			return fmt.Errorf("cannot transition trip from %s to %s", t.State, next)
		}
		t.State = next
		return s.trips.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if next.Terminal() {
		delete(s.active, t.AmbulanceID)
	} else {
		s.active[t.AmbulanceID] = t
	}
	s.mu.Unlock()

	s.log.Info().
		Str("trip_id", t.ID.String()).
		Str("ambulance_id", t.AmbulanceID).
		Str("state", string(next)).
		Msg("trip state changed")

	if s.activator != nil && (next == TripEnRouteToHospital || next.Terminal()) {
		if _, err := s.activator.Activate(t.AmbulanceID, t.Severity.String()); err != nil {
			s.log.Warn().Err(err).
				Str("ambulance_id", t.AmbulanceID).
				Msg("corridor re-evaluation failed")
		}
	}
	return t, nil
}

// -- Corridor feed --

// ActiveDestination reports the hospital an ambulance is routed to. Falls
// back to the home hospital when no trip is active so demo corridors work
// without dispatch paperwork.
func (s *Service) ActiveDestination(vehicleID string) (string, bool) {
	s.mu.RLock()
	t, ok := s.active[vehicleID]
	s.mu.RUnlock()
	if ok {
		return t.HospitalID, true
	}
	if a, ok := s.registry.Ambulance(vehicleID); ok {
		return a.HomeHospitalID, true
	}
	return "", false
}

// ActiveSeverity reports the severity of the vehicle's active trip.
func (s *Service) ActiveSeverity(vehicleID string) (signal.Severity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.active[vehicleID]; ok {
		return t.Severity, true
	}
	return 0, false
}
