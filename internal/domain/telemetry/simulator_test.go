package telemetry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/amb/amb/pkg/geo"
)

func TestSimulator_RunsToFinalWaypoint(t *testing.T) {
	store := NewStore()
	sim := NewSimulator(store, zerolog.Nop())

	var ticks atomic.Int64
	sim.SetTickHook(func(vehicleID string) {
		if vehicleID == "AMB-1" {
			ticks.Add(1)
		}
	})

	// ~111m leg at very high speed and a short step so the run completes
	// quickly.
	waypoints := []geo.Point{
		{Lat: 13.0, Lng: 80.0},
		{Lat: 13.001, Lng: 80.0},
	}
	err := sim.Start(context.Background(), "AMB-1", waypoints, 4000, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for sim.Running("AMB-1") {
		select {
		case <-deadline:
			t.Fatal("simulation did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sample, ok := store.Latest("AMB-1")
	if !ok {
		t.Fatal("expected a final sample")
	}
	if sample.Position != waypoints[1] {
		t.Errorf("expected vehicle parked at final waypoint, got %+v", sample.Position)
	}
	if ticks.Load() == 0 {
		t.Error("expected the tick hook to fire")
	}
}

func TestSimulator_StopCancelsRun(t *testing.T) {
	store := NewStore()
	sim := NewSimulator(store, zerolog.Nop())

	waypoints := []geo.Point{
		{Lat: 13.0, Lng: 80.0},
		{Lat: 14.0, Lng: 80.0}, // ~111km: would run for a long time
	}
	if err := sim.Start(context.Background(), "AMB-1", waypoints, 40, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if !sim.Running("AMB-1") {
		t.Fatal("expected simulation to be running")
	}

	sim.Stop("AMB-1")

	deadline := time.After(time.Second)
	for sim.Running("AMB-1") {
		select {
		case <-deadline:
			t.Fatal("simulation did not stop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSimulator_RestartKeepsNewRunControllable(t *testing.T) {
	store := NewStore()
	sim := NewSimulator(store, zerolog.Nop())

	longLeg := []geo.Point{
		{Lat: 13.0, Lng: 80.0},
		{Lat: 14.0, Lng: 80.0}, // ~111km so neither run finishes on its own
	}
	if err := sim.Start(context.Background(), "AMB-1", longLeg, 40, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := sim.Start(context.Background(), "AMB-1", longLeg, 40, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	// Let the superseded first run's goroutine exit and clean up.
	time.Sleep(100 * time.Millisecond)
	if !sim.Running("AMB-1") {
		t.Fatal("second run must remain tracked after the first run exits")
	}

	// The second run must still be stoppable.
	sim.Stop("AMB-1")
	deadline := time.After(time.Second)
	for sim.Running("AMB-1") {
		select {
		case <-deadline:
			t.Fatal("restarted simulation did not stop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSimulator_RejectsBadInput(t *testing.T) {
	sim := NewSimulator(NewStore(), zerolog.Nop())
	one := []geo.Point{{Lat: 13.0, Lng: 80.0}}
	two := []geo.Point{{Lat: 13.0, Lng: 80.0}, {Lat: 13.1, Lng: 80.0}}

	if err := sim.Start(context.Background(), "AMB-1", one, 40, time.Second); err == nil {
		t.Error("expected error for a single waypoint")
	}
	if err := sim.Start(context.Background(), "AMB-1", two, 0, time.Second); err == nil {
		t.Error("expected error for zero speed")
	}
	if err := sim.Start(context.Background(), "AMB-1", two, 40, 0); err == nil {
		t.Error("expected error for zero step")
	}
}
