// Package route holds the static signal catalog and the destination route
// table. Both are loaded once at startup from the data directory and are
// read-only to the engine.
package route

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amb/amb/pkg/geo"
)

// Catalog maps signal ids to positions and destination ids to ordered signal
// sequences. It is immutable once constructed, so it is safe for concurrent
// reads without locking.
type Catalog struct {
	signals map[string]geo.Point
	routes  map[string][]string
}

// NewCatalog builds a catalog from in-memory tables. Tests use this directly.
func NewCatalog(signals map[string]geo.Point, routes map[string][]string) *Catalog {
	sigCopy := make(map[string]geo.Point, len(signals))
	for id, p := range signals {
		sigCopy[id] = p
	}
	routeCopy := make(map[string][]string, len(routes))
	for dest, seq := range routes {
		routeCopy[dest] = append([]string(nil), seq...)
	}
	return &Catalog{signals: sigCopy, routes: routeCopy}
}

type signalRecord struct {
	SignalID string     `json:"signal_id"`
	Location [2]float64 `json:"location"` // [lat, lng]
}

type routeRecord struct {
	SignalSequence []string `json:"signal_sequence"`
}

// Load reads signals.json and routes.json from dataDir.
func Load(dataDir string) (*Catalog, error) {
	signalsRaw, err := os.ReadFile(filepath.Join(dataDir, "signals.json"))
	if err != nil {
		return nil, fmt.Errorf("read signals catalog: %w", err)
	}
	var records []signalRecord
	if err := json.Unmarshal(signalsRaw, &records); err != nil {
		return nil, fmt.Errorf("parse signals catalog: %w", err)
	}

	signals := make(map[string]geo.Point, len(records))
	for _, rec := range records {
		if rec.SignalID == "" {
			return nil, fmt.Errorf("signals catalog contains an entry without signal_id")
		}
		signals[rec.SignalID] = geo.Point{Lat: rec.Location[0], Lng: rec.Location[1]}
	}

	routesRaw, err := os.ReadFile(filepath.Join(dataDir, "routes.json"))
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	var routeRecords map[string]routeRecord
	if err := json.Unmarshal(routesRaw, &routeRecords); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}

	routes := make(map[string][]string, len(routeRecords))
	for dest, rec := range routeRecords {
		for _, sigID := range rec.SignalSequence {
			if _, ok := signals[sigID]; !ok {
				return nil, fmt.Errorf("route %s references unknown signal %s", dest, sigID)
			}
		}
		routes[dest] = rec.SignalSequence
	}

	return &Catalog{signals: signals, routes: routes}, nil
}

// SignalPosition returns the catalog position of a signal.
func (c *Catalog) SignalPosition(id string) (geo.Point, bool) {
	p, ok := c.signals[id]
	return p, ok
}

// SignalPositions returns a copy of the full signal table, used to preload
// the signal store at startup.
func (c *Catalog) SignalPositions() map[string]geo.Point {
	out := make(map[string]geo.Point, len(c.signals))
	for id, p := range c.signals {
		out[id] = p
	}
	return out
}

// Route returns the ordered signal sequence for a destination.
func (c *Catalog) Route(destinationID string) ([]string, bool) {
	seq, ok := c.routes[destinationID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), seq...), true
}

// RouteWaypoints returns the positions of a destination route's signals in
// route order, for the GPS simulator to follow.
func (c *Catalog) RouteWaypoints(destinationID string) ([]geo.Point, bool) {
	seq, ok := c.routes[destinationID]
	if !ok {
		return nil, false
	}
	waypoints := make([]geo.Point, 0, len(seq))
	for _, sigID := range seq {
		if p, ok := c.signals[sigID]; ok {
			waypoints = append(waypoints, p)
		}
	}
	return waypoints, true
}

// Destinations returns every destination id with a route.
func (c *Catalog) Destinations() []string {
	out := make([]string, 0, len(c.routes))
	for dest := range c.routes {
		out = append(out, dest)
	}
	return out
}
