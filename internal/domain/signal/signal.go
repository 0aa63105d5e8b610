package signal

import (
	"sync"
	"time"

	"github.com/amb/amb/pkg/geo"
)

// State is the priority lifecycle state of one intersection.
type State string

const (
	StateNormal  State = "NORMAL"
	StatePrepare State = "PREPARE_PRIORITY"
	StateGreen   State = "GREEN_FOR_AMBULANCE"
	StateReset   State = "RESET"
)

// Arbitration is the outcome of conflict resolution for the calling vehicle
// at the time of a transition.
type Arbitration int

const (
	// ArbitrationNone means the signal was not contested (no decision on file).
	ArbitrationNone Arbitration = iota
	ArbitrationWon
	ArbitrationLost
)

func (a Arbitration) String() string {
	switch a {
	case ArbitrationWon:
		return "won"
	case ArbitrationLost:
		return "lost"
	}
	return "not_contested"
}

// MarshalJSON renders the outcome as its name.
func (a Arbitration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

const (
	// MaxHistoryEntries bounds the per-signal transition log.
	MaxHistoryEntries = 50
	// MaxGreenSeconds is the green-time policy budget.
	MaxGreenSeconds = 60

	// FSM trigger thresholds, in flat-earth km.
	prepareDistanceKm = 0.5
	grantDistanceKm   = 0.2
	clearDistanceKm   = 1.0
)

// HistoryEntry records one transition call, whether or not the state changed.
type HistoryEntry struct {
	State      State       `json:"state"`
	Reason     string      `json:"reason"`
	Severity   Severity    `json:"severity"`
	DistanceKm float64     `json:"distance_km"`
	Outcome    Arbitration `json:"arbitration"`
	At         time.Time   `json:"at"`
}

// Signal owns the priority lifecycle of one physical intersection. All access
// to its mutable state goes through its own mutex, so transitions for
// different signals proceed in parallel while calls for the same signal are
// serialized.
type Signal struct {
	mu sync.Mutex

	id             string
	position       geo.Point
	state          State
	owner          string
	greenStartedAt time.Time
	history        []HistoryEntry

	now func() time.Time
}

// New constructs a signal in NORMAL state at the given position.
func New(id string, position geo.Point) *Signal {
	return &Signal{
		id:       id,
		position: position,
		state:    StateNormal,
		now:      time.Now,
	}
}

// ID returns the stable signal identifier.
func (s *Signal) ID() string { return s.id }

// Position returns the intersection's catalog position.
func (s *Signal) Position() geo.Point { return s.position }

// State returns the current FSM state.
func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Owner returns the vehicle currently holding priority, if any.
func (s *Signal) Owner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.owner != ""
}

// Active reports whether the signal is already committed to a vehicle
// (PREPARE_PRIORITY or GREEN_FOR_AMBULANCE).
func (s *Signal) Active() bool {
	st := s.State()
	return st == StatePrepare || st == StateGreen
}

// Transition applies one position update for vehicleID against this signal.
// distanceKm must be the flat-earth distance from the vehicle's latest sample
// to the signal. Exactly one history entry is appended per call, even when the
// state does not change. An invalid severity fails the call without mutating
// anything.
func (s *Signal) Transition(vehicleID string, distanceKm float64, sev Severity, outcome Arbitration) (State, error) {
	if !sev.Valid() {
		return "", errInvalidSeverity(sev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reason string
	switch s.state {
	case StateNormal:
		switch {
		case outcome == ArbitrationLost:
			reason = "suppressed by arbitration"
		case distanceKm < prepareDistanceKm && sev >= SeverityHigh:
			s.state = StatePrepare
			s.owner = vehicleID
			reason = "vehicle within 500m with HIGH/CRITICAL severity"
		default:
			reason = "no priority trigger"
		}

	case StatePrepare:
		switch {
		case distanceKm < grantDistanceKm:
			s.state = StateGreen
			s.owner = vehicleID
			s.greenStartedAt = s.now()
			reason = "vehicle within 200m; green granted"
		case distanceKm > clearDistanceKm:
			s.state = StateReset
			s.owner = ""
			reason = "vehicle passed (>1km); resetting"
		default:
			reason = "holding prepare"
		}

	case StateGreen:
		if distanceKm > clearDistanceKm || s.now().Sub(s.greenStartedAt) > MaxGreenSeconds*time.Second {
			s.state = StateReset
			s.owner = ""
			s.greenStartedAt = time.Time{}
			reason = "vehicle cleared or max green time exceeded; resetting"
		} else {
			reason = "holding green"
		}

	case StateReset:
		s.state = StateNormal
		s.owner = ""
		s.greenStartedAt = time.Time{}
		reason = "reset cycle complete"
	}

	s.appendHistory(HistoryEntry{
		State:      s.state,
		Reason:     reason,
		Severity:   sev,
		DistanceKm: distanceKm,
		Outcome:    outcome,
		At:         s.now(),
	})
	return s.state, nil
}

func (s *Signal) appendHistory(e HistoryEntry) {
	s.history = append(s.history, e)
	if len(s.history) > MaxHistoryEntries {
		s.history = s.history[len(s.history)-MaxHistoryEntries:]
	}
}

// History returns a copy of the transition log, oldest first.
func (s *Signal) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// GreenSecondsRemaining computes the remaining green budget on read. It is
// zero outside GREEN_FOR_AMBULANCE. Expiry itself is lazy: the signal only
// resets on the next Transition call that references it.
func (s *Signal) GreenSecondsRemaining() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGreen || s.greenStartedAt.IsZero() {
		return 0
	}
	remaining := MaxGreenSeconds - s.now().Sub(s.greenStartedAt).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot is the read-only projection served to monitoring collaborators.
type Snapshot struct {
	ID                    string         `json:"signal_id"`
	State                 State          `json:"state"`
	Owner                 string         `json:"owner,omitempty"`
	GreenSecondsRemaining float64        `json:"green_seconds_remaining"`
	HistoryTail           []HistoryEntry `json:"history_tail"`
}

// Snapshot captures the current state plus up to tail recent history entries.
func (s *Signal) Snapshot(tail int) Snapshot {
	s.mu.Lock()
	state := s.state
	owner := s.owner
	var remaining float64
	if state == StateGreen && !s.greenStartedAt.IsZero() {
		if r := MaxGreenSeconds - s.now().Sub(s.greenStartedAt).Seconds(); r > 0 {
			remaining = r
		}
	}
	start := len(s.history) - tail
	if start < 0 {
		start = 0
	}
	hist := make([]HistoryEntry, len(s.history)-start)
	copy(hist, s.history[start:])
	s.mu.Unlock()

	return Snapshot{
		ID:                    s.id,
		State:                 state,
		Owner:                 owner,
		GreenSecondsRemaining: remaining,
		HistoryTail:           hist,
	}
}
