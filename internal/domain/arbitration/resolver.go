// Package arbitration decides which of several competing ambulances wins
// priority at a shared traffic signal, and keeps an auditable record of every
// decision.
package arbitration

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/internal/domain/telemetry"
	"github.com/amb/amb/pkg/geo"
)

const (
	// MaxDecisionLogEntries bounds the append-only audit log.
	MaxDecisionLogEntries = 1000

	// worstETASeconds is the sentinel ETA for a stationary vehicle.
	worstETASeconds = 999
)

// PositionSource supplies the latest sample per vehicle.
type PositionSource interface {
	Latest(vehicleID string) (telemetry.Sample, bool)
}

// SignalLocator supplies catalog positions for signals.
type SignalLocator interface {
	SignalPosition(id string) (geo.Point, bool)
}

// Decision is an immutable audit record of one arbitration call.
type Decision struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ResourceID string    `json:"resource_id"`
	Winner     string    `json:"winner,omitempty"`
	Losers     []string  `json:"losers,omitempty"`
	Reason     string    `json:"reason"`
}

// Resolver owns the resource-lock map and the decision log. It is injected
// into the planner rather than kept as process-wide state.
type Resolver struct {
	positions PositionSource
	signals   SignalLocator

	mu        sync.Mutex
	locks     map[string]string
	decisions []Decision
}

func NewResolver(positions PositionSource, signals SignalLocator) *Resolver {
	return &Resolver{
		positions: positions,
		signals:   signals,
		locks:     make(map[string]string),
	}
}

type score struct {
	vehicleID  string
	rank       int
	etaSeconds float64
	distKm     float64
	arrival    time.Time
	reason     string
}

// beats reports whether a outranks b under the lexicographic order:
// severity highest, then lowest ETA, then shortest distance, then latest
// arrival timestamp. A complete tie falls through to the vehicle id so the
// outcome never depends on candidate order.
func (a score) beats(b score) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	if a.etaSeconds != b.etaSeconds {
		return a.etaSeconds < b.etaSeconds
	}
	if a.distKm != b.distKm {
		return a.distKm < b.distKm
	}
	if !a.arrival.Equal(b.arrival) {
		return a.arrival.After(b.arrival)
	}
	return a.vehicleID < b.vehicleID
}

// Resolve scores every candidate with a known position and picks exactly one
// winner for the resource. It overwrites the resource lock (clearing it when
// no candidate had usable position data) and appends one decision to the
// audit log. Repeated identical inputs produce the same winner, but every
// call still appends a new log entry.
func (r *Resolver) Resolve(resourceID string, candidates []string, severities map[string]signal.Severity) (string, bool) {
	resourcePos, resourceKnown := r.signals.SignalPosition(resourceID)

	var scores []score
	if resourceKnown {
		for _, vehicleID := range candidates {
			sample, ok := r.positions.Latest(vehicleID)
			if !ok {
				continue
			}
			sev, ok := severities[vehicleID]
			if !ok {
				sev = signal.SeverityLow
			}
			dist := geo.DistanceKm(sample.Position, resourcePos)
			eta := float64(worstETASeconds)
			if sample.SpeedKmh > 0 {
				eta = dist / (sample.SpeedKmh / 3.6)
			}
			scores = append(scores, score{
				vehicleID:  vehicleID,
				rank:       sev.Rank(),
				etaSeconds: eta,
				distKm:     dist,
				arrival:    sample.RecordedAt,
				reason:     fmt.Sprintf("sev:%d/eta:%.1fs/dist:%.2fkm", sev.Rank(), eta, dist),
			})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(scores) == 0 {
		r.locks[resourceID] = ""
		r.appendDecision(Decision{
			ID:         uuid.New(),
			Timestamp:  time.Now(),
			ResourceID: resourceID,
			Reason:     "no eligible candidates",
		})
		return "", false
	}

	winner := scores[0]
	for _, s := range scores[1:] {
		if s.beats(winner) {
			winner = s
		}
	}

	losers := make([]string, 0, len(scores)-1)
	for _, s := range scores {
		if s.vehicleID != winner.vehicleID {
			losers = append(losers, s.vehicleID)
		}
	}

	r.locks[resourceID] = winner.vehicleID
	r.appendDecision(Decision{
		ID:         uuid.New(),
		Timestamp:  time.Now(),
		ResourceID: resourceID,
		Winner:     winner.vehicleID,
		Losers:     losers,
		Reason:     winner.reason,
	})
	return winner.vehicleID, true
}

func (r *Resolver) appendDecision(d Decision) {
	r.decisions = append(r.decisions, d)
	if len(r.decisions) > MaxDecisionLogEntries {
		r.decisions = r.decisions[len(r.decisions)-MaxDecisionLogEntries:]
	}
}

// Holder returns the vehicle currently authorized for the resource, if any.
func (r *Resolver) Holder(resourceID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	holder, ok := r.locks[resourceID]
	if !ok || holder == "" {
		return "", false
	}
	return holder, true
}

// Locks returns a copy of the resource-lock map, skipping cleared entries.
func (r *Resolver) Locks() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.locks))
	for id, holder := range r.locks {
		if holder != "" {
			out[id] = holder
		}
	}
	return out
}

// Decisions returns a page of the audit log, newest first, plus the total
// number of retained entries.
func (r *Resolver) Decisions(limit, offset int) ([]Decision, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := len(r.decisions)
	if offset >= total {
		return []Decision{}, total
	}
	end := total - offset
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]Decision, 0, end-start)
	for i := end - 1; i >= start; i-- {
		page = append(page, r.decisions[i])
	}
	return page, total
}
