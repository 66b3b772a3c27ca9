package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	paris := Coordinate{Lat: 48.8566, Lon: 2.3522}
	london := Coordinate{Lat: 51.5074, Lon: -0.1278}

	got := HaversineKm(paris, london)
	if math.Abs(got-343.5) > 2 {
		t.Fatalf("expected roughly 343.5 km, got %.2f", got)
	}
	if HaversineKm(paris, paris) != 0 {
		t.Fatalf("expected zero distance to self")
	}
}

func TestFromLonLat(t *testing.T) {
	c, err := FromLonLat([]float64{13.4, 52.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 52.5 || c.Lon != 13.4 {
		t.Fatalf("unexpected coordinate %+v", c)
	}
	if c.LonLat() != [2]float64{13.4, 52.5} || c.LatLng() != [2]float64{52.5, 13.4} {
		t.Fatalf("unexpected pair ordering")
	}
	if _, err := FromLonLat([]float64{1}); err == nil {
		t.Fatalf("expected error for short position")
	}
	if _, err := FromLonLat([]float64{200, 0}); err == nil {
		t.Fatalf("expected error for out of range longitude")
	}
}
