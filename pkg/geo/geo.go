// Package geo provides the distance math shared by the corridor engine.
//
// The whole engine works on a flat-earth approximation: one degree of
// latitude or longitude counts as 111 km. The FSM and planner thresholds
// (0.5/0.2/1.0/1.5/2.0 km) were tuned against this approximation, so it
// must not be swapped for geodesic distance.
package geo

import "math"

// KmPerDegree is the flat-earth conversion factor.
const KmPerDegree = 111.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the flat-earth distance between two points in km.
func DistanceKm(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng) * KmPerDegree
}
