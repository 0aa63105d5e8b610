package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/amb/amb/pkg/geo"
)

// Registry holds the static hospital and ambulance rosters loaded from the
// data directory. Immutable after load.
type Registry struct {
	hospitals  map[string]Hospital
	ambulances map[string]Ambulance
}

type hospitalRecord struct {
	HospitalID string     `json:"hospital_id"`
	Name       string     `json:"name"`
	Location   [2]float64 `json:"location"` // [lat, lng]
	Address    string     `json:"address"`
}

type ambulanceRecord struct {
	AmbulanceID string `json:"ambulance_id"`
	Callsign    string `json:"callsign"`
	HospitalID  string `json:"hospital_id"`
}

// LoadRegistry reads hospitals.json and ambulances.json from dataDir. Every
// ambulance must reference a known hospital.
func LoadRegistry(dataDir string) (*Registry, error) {
	hospRaw, err := os.ReadFile(filepath.Join(dataDir, "hospitals.json"))
	if err != nil {
		return nil, fmt.Errorf("read hospitals roster: %w", err)
	}
	var hospRecords []hospitalRecord
	if err := json.Unmarshal(hospRaw, &hospRecords); err != nil {
		return nil, fmt.Errorf("parse hospitals roster: %w", err)
	}

	hospitals := make(map[string]Hospital, len(hospRecords))
	for _, rec := range hospRecords {
		if rec.HospitalID == "" {
			return nil, fmt.Errorf("hospitals roster contains an entry without hospital_id")
		}
		hospitals[rec.HospitalID] = Hospital{
			ID:       rec.HospitalID,
			Name:     rec.Name,
			Position: geo.Point{Lat: rec.Location[0], Lng: rec.Location[1]},
			Address:  rec.Address,
		}
	}

	ambRaw, err := os.ReadFile(filepath.Join(dataDir, "ambulances.json"))
	if err != nil {
		return nil, fmt.Errorf("read ambulances roster: %w", err)
	}
	var ambRecords []ambulanceRecord
	if err := json.Unmarshal(ambRaw, &ambRecords); err != nil {
		return nil, fmt.Errorf("parse ambulances roster: %w", err)
	}

	ambulances := make(map[string]Ambulance, len(ambRecords))
	for _, rec := range ambRecords {
		if rec.AmbulanceID == "" {
			return nil, fmt.Errorf("ambulances roster contains an entry without ambulance_id")
		}
		if _, ok := hospitals[rec.HospitalID]; !ok {
			return nil, fmt.Errorf("ambulance %s references unknown hospital %s", rec.AmbulanceID, rec.HospitalID)
		}
		ambulances[rec.AmbulanceID] = Ambulance{
			ID:             rec.AmbulanceID,
			Callsign:       rec.Callsign,
			HomeHospitalID: rec.HospitalID,
		}
	}

	return &Registry{hospitals: hospitals, ambulances: ambulances}, nil
}

// NewRegistry builds a registry from in-memory rosters. Tests use this
// directly.
func NewRegistry(hospitals []Hospital, ambulances []Ambulance) *Registry {
	r := &Registry{
		hospitals:  make(map[string]Hospital, len(hospitals)),
		ambulances: make(map[string]Ambulance, len(ambulances)),
	}
	for _, h := range hospitals {
		r.hospitals[h.ID] = h
	}
	for _, a := range ambulances {
		r.ambulances[a.ID] = a
	}
	return r
}

// Hospital looks up one hospital.
func (r *Registry) Hospital(id string) (Hospital, bool) {
	h, ok := r.hospitals[id]
	return h, ok
}

// Ambulance looks up one ambulance.
func (r *Registry) Ambulance(id string) (Ambulance, bool) {
	a, ok := r.ambulances[id]
	return a, ok
}

// Hospitals returns the roster sorted by id.
func (r *Registry) Hospitals() []Hospital {
	out := make([]Hospital, 0, len(r.hospitals))
	for _, h := range r.hospitals {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ambulances returns the roster sorted by id.
func (r *Registry) Ambulances() []Ambulance {
	out := make([]Ambulance, 0, len(r.ambulances))
	for _, a := range r.ambulances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
