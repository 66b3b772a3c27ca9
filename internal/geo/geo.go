// Package geo holds the coordinate type shared by the geocoder, the routing
// client and the map renderer.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0088

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LonLat returns the [lon, lat] pair used by openrouteservice and GeoJSON.
func (c Coordinate) LonLat() [2]float64 { return [2]float64{c.Lon, c.Lat} }

// LatLng returns the [lat, lon] pair used by Leaflet.
func (c Coordinate) LatLng() [2]float64 { return [2]float64{c.Lat, c.Lon} }

// FromLonLat builds a coordinate from a GeoJSON position.
func FromLonLat(p []float64) (Coordinate, error) {
	if len(p) < 2 {
		return Coordinate{}, fmt.Errorf("geo: position needs two values, got %d", len(p))
	}
	c := Coordinate{Lon: p[0], Lat: p[1]}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("geo: position %v out of range", p)
	}
	return c, nil
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
