package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDataDir(t *testing.T, hospitals, ambulances string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hospitals.json"), []byte(hospitals), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ambulances.json"), []byte(ambulances), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadRegistry(t *testing.T) {
	dir := writeDataDir(t,
		`[{"hospital_id":"HOSP-A","name":"General","location":[13.05,80.25],"address":"1 Main St"}]`,
		`[{"ambulance_id":"AMB-1","callsign":"Alpha","hospital_id":"HOSP-A"}]`,
	)
	reg, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, ok := reg.Hospital("HOSP-A")
	if !ok || h.Name != "General" || h.Position.Lat != 13.05 {
		t.Errorf("unexpected hospital: %+v ok=%v", h, ok)
	}
	a, ok := reg.Ambulance("AMB-1")
	if !ok || a.HomeHospitalID != "HOSP-A" {
		t.Errorf("unexpected ambulance: %+v ok=%v", a, ok)
	}
}

func TestLoadRegistry_RejectsUnknownHospital(t *testing.T) {
	dir := writeDataDir(t,
		`[{"hospital_id":"HOSP-A","name":"General","location":[13.05,80.25]}]`,
		`[{"ambulance_id":"AMB-1","hospital_id":"HOSP-MISSING"}]`,
	)
	if _, err := LoadRegistry(dir); err == nil {
		t.Error("expected error for ambulance referencing unknown hospital")
	}
}

func TestLoadRegistry_RejectsMissingIDs(t *testing.T) {
	dir := writeDataDir(t,
		`[{"name":"General","location":[13.05,80.25]}]`,
		`[]`,
	)
	if _, err := LoadRegistry(dir); err == nil {
		t.Error("expected error for hospital without hospital_id")
	}
}
