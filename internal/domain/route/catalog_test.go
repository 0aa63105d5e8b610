package route

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amb/amb/pkg/geo"
)

func writeDataDir(t *testing.T, signals, routes string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "signals.json"), []byte(signals), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "routes.json"), []byte(routes), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeDataDir(t,
		`[
			{"signal_id": "SIG-1", "location": [13.0827, 80.2707]},
			{"signal_id": "SIG-2", "location": [13.0850, 80.2750]}
		]`,
		`{"HOSP-001": {"signal_sequence": ["SIG-1", "SIG-2"]}}`,
	)

	cat, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, ok := cat.SignalPosition("SIG-1")
	if !ok {
		t.Fatal("expected SIG-1 in catalog")
	}
	if pos != (geo.Point{Lat: 13.0827, Lng: 80.2707}) {
		t.Errorf("unexpected position %+v", pos)
	}

	seq, ok := cat.Route("HOSP-001")
	if !ok || len(seq) != 2 || seq[0] != "SIG-1" {
		t.Errorf("unexpected route %v", seq)
	}

	if _, ok := cat.Route("HOSP-404"); ok {
		t.Error("unknown destination should have no route")
	}
}

func TestLoad_RejectsUnknownSignalInRoute(t *testing.T) {
	dir := writeDataDir(t,
		`[{"signal_id": "SIG-1", "location": [13.0, 80.0]}]`,
		`{"HOSP-001": {"signal_sequence": ["SIG-1", "SIG-9"]}}`,
	)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for route referencing an uncataloged signal")
	}
}

func TestLoad_RejectsMissingSignalID(t *testing.T) {
	dir := writeDataDir(t,
		`[{"location": [13.0, 80.0]}]`,
		`{}`,
	)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for signal record without id")
	}
}

func TestCatalog_RouteReturnsCopy(t *testing.T) {
	cat := NewCatalog(
		map[string]geo.Point{"SIG-1": {}, "SIG-2": {}},
		map[string][]string{"HOSP-001": {"SIG-1", "SIG-2"}},
	)
	seq, _ := cat.Route("HOSP-001")
	seq[0] = "TAMPERED"

	again, _ := cat.Route("HOSP-001")
	if again[0] != "SIG-1" {
		t.Error("Route must return a defensive copy")
	}
}
