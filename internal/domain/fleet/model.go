package fleet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/pkg/geo"
)

// Hospital is a routing destination. Bed availability lives in the hospital
// information system, not here.
type Hospital struct {
	ID       string    `json:"hospital_id"`
	Name     string    `json:"name"`
	Position geo.Point `json:"position"`
	Address  string    `json:"address,omitempty"`
}

// Ambulance is one registered vehicle.
type Ambulance struct {
	ID             string `json:"ambulance_id"`
	Callsign       string `json:"callsign,omitempty"`
	HomeHospitalID string `json:"hospital_id"`
}

// Emergency is one reported incident.
type Emergency struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Lat             float64         `db:"lat" json:"lat"`
	Lng             float64         `db:"lng" json:"lng"`
	Address         *string         `db:"address" json:"address,omitempty"`
	EmergencyType   string          `db:"emergency_type" json:"emergency_type"`
	Severity        signal.Severity `db:"severity" json:"severity"`
	Description     *string         `db:"description" json:"description,omitempty"`
	ReportedVictims int             `db:"reported_victims" json:"reported_victims"`
	CallerName      *string         `db:"caller_name" json:"caller_name,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// TripState is the lifecycle state of one dispatch.
type TripState string

const (
	TripPending           TripState = "PENDING"
	TripAccepted          TripState = "ACCEPTED"
	TripEnRouteToScene    TripState = "EN_ROUTE_TO_SCENE"
	TripAtScene           TripState = "AT_SCENE"
	TripPatientOnboard    TripState = "PATIENT_ONBOARD"
	TripEnRouteToHospital TripState = "EN_ROUTE_TO_HOSPITAL"
	TripAtHospital        TripState = "AT_HOSPITAL"
	TripCompleted         TripState = "COMPLETED"
	TripCancelled         TripState = "CANCELLED"
)

// tripTransitions lists the allowed next states per state. Every non-terminal
// state may also cancel.
var tripTransitions = map[TripState][]TripState{
	TripPending:           {TripAccepted, TripCancelled},
	TripAccepted:          {TripEnRouteToScene, TripCancelled},
	TripEnRouteToScene:    {TripAtScene, TripCancelled},
	TripAtScene:           {TripPatientOnboard, TripCancelled},
	TripPatientOnboard:    {TripEnRouteToHospital, TripCancelled},
	TripEnRouteToHospital: {TripAtHospital, TripCancelled},
	TripAtHospital:        {TripCompleted, TripCancelled},
}

// CanTransition reports whether a trip may move from its current state to
// next.
func (s TripState) CanTransition(next TripState) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the trip.
func (s TripState) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// ParseTripState validates a trip state string.
func ParseTripState(s string) (TripState, error) {
	switch TripState(s) {
	case TripPending, TripAccepted, TripEnRouteToScene, TripAtScene,
		TripPatientOnboard, TripEnRouteToHospital, TripAtHospital,
		TripCompleted, TripCancelled:
		return TripState(s), nil
	}
	return "", fmt.Errorf("invalid trip state %q", s)
}

// Trip is one ambulance dispatch from an emergency to a hospital.
type Trip struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EmergencyID uuid.UUID       `db:"emergency_id" json:"emergency_id"`
	AmbulanceID string          `db:"ambulance_id" json:"ambulance_id"`
	HospitalID  string          `db:"hospital_id" json:"hospital_id"`
	Severity    signal.Severity `db:"severity" json:"severity"`
	State       TripState       `db:"state" json:"state"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
