// Package geo provides geographic utility functions for freight matching.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Great-circle distance is a good-enough proxy for deadhead distance between
// a vehicle's position and a pickup point; road distance comes from the
// (out-of-scope) routing collaborator when a precise figure is needed.
package geo

import (
	"math"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is the assumed average truck speed on European
	// corridors. Used for rough transit-time estimates only.
	AverageSpeedKmph = 65.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateTransitHours returns the estimated direct transit time between two
// points in hours, assuming AverageSpeedKmph.
func EstimateTransitHours(a, b model.Location) float64 {
	return HaversineKm(a, b) / AverageSpeedKmph
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
