package geo

import (
	"testing"

	"github.com/lauraedgell33/freightmatch/internal/model"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	loc := model.Location{Lat: 52.5200, Lon: 13.4050}
	got := HaversineKm(loc, loc)
	if got != 0 {
		t.Errorf("HaversineKm(same point) = %v, want 0", got)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Berlin to Paris (~878 km great-circle)
	berlin := model.Location{Lat: 52.5200, Lon: 13.4050}
	paris := model.Location{Lat: 48.8566, Lon: 2.3522}
	got := HaversineKm(berlin, paris)
	wantMin, wantMax := 850.0, 900.0
	if got < wantMin || got > wantMax {
		t.Errorf("HaversineKm(Berlin→Paris) = %.2f km, want between %.0f and %.0f", got, wantMin, wantMax)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := model.Location{Lat: 50.1109, Lon: 8.6821}  // Frankfurt
	b := model.Location{Lat: 45.4642, Lon: 9.1900}  // Milan
	if ab, ba := HaversineKm(a, b), HaversineKm(b, a); ab != ba {
		t.Errorf("HaversineKm not symmetric: %v vs %v", ab, ba)
	}
}

func TestEstimateTransitHours(t *testing.T) {
	berlin := model.Location{Lat: 52.5200, Lon: 13.4050}
	paris := model.Location{Lat: 48.8566, Lon: 2.3522}
	got := EstimateTransitHours(berlin, paris)
	// ~878 km at 65 km/h ≈ 13.5 h
	if got < 12 || got > 15 {
		t.Errorf("EstimateTransitHours = %.1f, expected ~13-14 h", got)
	}
}
