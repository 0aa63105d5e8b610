package corridor

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/amb/amb/internal/domain/arbitration"
	"github.com/amb/amb/internal/domain/route"
	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/internal/domain/telemetry"
)

type plannerFixture struct {
	catalog   *route.Catalog
	ids       []string
	positions *telemetry.Store
	trips     *fakeTrips
	signals   *signal.Store
	resolver  *arbitration.Resolver
	planner   *Planner
}

func newPlannerFixture(t *testing.T, n int, startKm, spacingKm float64) *plannerFixture {
	t.Helper()
	catalog, ids := lineCatalog(n, startKm, spacingKm)
	positions := telemetry.NewStore()
	trips := &fakeTrips{
		destinations: map[string]string{"AMB-1": "HOSP-001"},
		severities:   map[string]signal.Severity{},
	}
	signals := signal.NewStore()
	signals.Preload(catalog.SignalPositions())
	resolver := arbitration.NewResolver(positions, catalog)
	selector := NewSelector(catalog, positions, trips)
	planner := NewPlanner(selector, catalog, positions, trips, signals, resolver, zerolog.Nop())
	return &plannerFixture{
		catalog:   catalog,
		ids:       ids,
		positions: positions,
		trips:     trips,
		signals:   signals,
		resolver:  resolver,
		planner:   planner,
	}
}

func (f *plannerFixture) state(t *testing.T, id string) signal.State {
	t.Helper()
	sig, ok := f.signals.Get(id)
	if !ok {
		t.Fatalf("signal %s missing from store", id)
	}
	return sig.State()
}

func TestActivate_InvalidSeverity(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-1", 0, 40)

	if _, err := f.planner.Activate("AMB-1", "SEVERE"); err == nil {
		t.Fatal("expected validation error for invalid severity")
	}
	for _, id := range f.ids {
		if f.state(t, id) != signal.StateNormal {
			t.Errorf("validation failure must not mutate signal %s", id)
		}
	}
}

func TestActivate_NoPositionYieldsEmptyCorridor(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)

	corridor, err := f.planner.Activate("AMB-1", "HIGH")
	if err != nil {
		t.Fatalf("missing position must not be an error: %v", err)
	}
	if len(corridor) != 0 {
		t.Errorf("expected empty corridor, got %v", corridor)
	}
}

func TestActivate_NoRouteYieldsEmptyCorridor(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-9", 0, 40)

	corridor, err := f.planner.Activate("AMB-9", "HIGH")
	if err != nil {
		t.Fatalf("missing route must not be an error: %v", err)
	}
	if len(corridor) != 0 {
		t.Errorf("expected empty corridor, got %v", corridor)
	}
}

func TestActivate_DropsSignalsBeyondRelevanceWindow(t *testing.T) {
	// Signals at 0.4, 1.4 and 2.4km; the last is beyond the 1.5km window.
	f := newPlannerFixture(t, 3, 0.4, 1.0)
	vehicleAtKm(f.positions, "AMB-1", 0, 40)

	corridor, err := f.planner.Activate("AMB-1", "HIGH")
	if err != nil {
		t.Fatal(err)
	}
	if len(corridor) != 2 {
		t.Fatalf("expected 2 relevant signals, got %v", corridor)
	}
	for _, id := range corridor {
		if id == f.ids[2] {
			t.Errorf("signal at 2.4km must be filtered out")
		}
	}
}

func TestActivate_HighSeverityActivatesNearestSignal(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-1", 0, 40)

	corridor, err := f.planner.Activate("AMB-1", "HIGH")
	if err != nil {
		t.Fatal(err)
	}
	if len(corridor) != 3 {
		t.Fatalf("expected 3 corridor signals, got %v", corridor)
	}
	if f.state(t, f.ids[0]) != signal.StatePrepare {
		t.Errorf("nearest signal should be PREPARE_PRIORITY, got %s", f.state(t, f.ids[0]))
	}
	// 0.9km and 1.4km are outside the 0.5km trigger.
	if f.state(t, f.ids[1]) != signal.StateNormal || f.state(t, f.ids[2]) != signal.StateNormal {
		t.Error("farther signals must stay NORMAL")
	}
}

func TestActivate_CriticalChainReaction(t *testing.T) {
	// Signals at 0.40, 0.45 and 1.0km so the first two are both inside the
	// 0.5km trigger. A CRITICAL corridor must still activate sequentially.
	catalog, ids := lineCatalog(3, 0.40, 0.05)
	positions := telemetry.NewStore()
	trips := &fakeTrips{destinations: map[string]string{"AMB-1": "HOSP-001"}, severities: map[string]signal.Severity{}}
	signals := signal.NewStore()
	signals.Preload(catalog.SignalPositions())
	resolver := arbitration.NewResolver(positions, catalog)
	planner := NewPlanner(NewSelector(catalog, positions, trips), catalog, positions, trips, signals, resolver, zerolog.Nop())

	vehicleAtKm(positions, "AMB-1", 0, 40)

	// First pass: everything cold, only signal[0] may activate.
	if _, err := planner.Activate("AMB-1", "CRITICAL"); err != nil {
		t.Fatal(err)
	}
	first, _ := signals.Get(ids[0])
	second, _ := signals.Get(ids[1])
	if first.State() != signal.StatePrepare {
		t.Fatalf("expected signal[0] PREPARE_PRIORITY, got %s", first.State())
	}
	if second.State() != signal.StateNormal {
		t.Fatalf("cold CRITICAL pass must only activate signal[0]; signal[1]=%s", second.State())
	}

	// Second pass: signal[0] is committed, signal[1] may now follow.
	if _, err := planner.Activate("AMB-1", "CRITICAL"); err != nil {
		t.Fatal(err)
	}
	if second.State() != signal.StatePrepare {
		t.Errorf("expected signal[1] PREPARE_PRIORITY after predecessor committed, got %s", second.State())
	}
}

func TestActivate_SkipsAlreadyActiveSignals(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-1", 0, 40)

	f.planner.Activate("AMB-1", "HIGH")
	sig, _ := f.signals.Get(f.ids[0])
	before := len(sig.History())

	// Active signals are skipped entirely: no transition, no history growth.
	f.planner.Activate("AMB-1", "HIGH")
	if got := len(sig.History()); got != before {
		t.Errorf("active signal must not be re-driven: history grew from %d to %d", before, got)
	}
}

func TestActivate_ArbitrationLoserIsSuppressed(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	// Two ambulances near the same corridor; AMB-2 carries a CRITICAL trip.
	vehicleAtKm(f.positions, "AMB-1", 0, 40)
	vehicleAtKm(f.positions, "AMB-2", 0.1, 40)
	f.trips.destinations["AMB-2"] = "HOSP-001"
	f.trips.severities["AMB-2"] = signal.SeverityCritical

	corridor, err := f.planner.Activate("AMB-1", "HIGH")
	if err != nil {
		t.Fatal(err)
	}
	if len(corridor) == 0 {
		t.Fatal("expected a corridor for AMB-1")
	}
	// AMB-2 outranks AMB-1 at every shared signal, so AMB-1 must not have
	// taken ownership of any of them.
	for _, id := range corridor {
		sig, _ := f.signals.Get(id)
		if owner, ok := sig.Owner(); ok && owner == "AMB-1" {
			t.Errorf("suppressed vehicle must not own signal %s", id)
		}
	}
	if holder, ok := f.resolver.Holder(corridor[0]); !ok || holder != "AMB-2" {
		t.Errorf("expected AMB-2 to hold the lock, got %q", holder)
	}
}

func TestActivate_FallbackByDistance(t *testing.T) {
	// Vehicle past the end of its route: route-ahead is empty, the fallback
	// picks nearby route signals under 2km instead.
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-1", 1.45, 40) // 0.05km past the last signal at 1.4km

	corridor, err := f.planner.Activate("AMB-1", "HIGH")
	if err != nil {
		t.Fatal(err)
	}
	if len(corridor) == 0 {
		t.Fatal("expected fallback corridor, got none")
	}
	// Fallback is distance-sorted: nearest first.
	if corridor[0] != f.ids[2] {
		t.Errorf("expected nearest signal %s first, got %v", f.ids[2], corridor)
	}
}

func TestStatus(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	vehicleAtKm(f.positions, "AMB-1", 0, 40)
	f.planner.Activate("AMB-1", "HIGH")

	st := f.planner.Status("AMB-1")
	if st.DestinationID != "HOSP-001" {
		t.Errorf("unexpected destination %q", st.DestinationID)
	}
	if len(st.FullRoute) != 3 {
		t.Errorf("expected full route of 3, got %v", st.FullRoute)
	}
	if len(st.ActiveCorridor) == 0 || len(st.Signals) != len(st.ActiveCorridor) {
		t.Fatalf("corridor/status mismatch: %v vs %v", st.ActiveCorridor, st.Signals)
	}
	if st.Signals[0].State != signal.StatePrepare {
		t.Errorf("expected first corridor signal PREPARE_PRIORITY, got %s", st.Signals[0].State)
	}
	if st.Signals[0].DistanceKm <= 0 {
		t.Error("expected a positive distance")
	}
}

func TestStatus_NoPosition(t *testing.T) {
	f := newPlannerFixture(t, 3, 0.4, 0.5)
	st := f.planner.Status("AMB-1")
	if len(st.ActiveCorridor) != 0 {
		t.Errorf("expected empty corridor without telemetry, got %v", st.ActiveCorridor)
	}
}
