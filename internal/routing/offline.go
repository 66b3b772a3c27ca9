package routing

import (
	"time"

	"finitefield.org/route-planner/internal/geo"
)

// roadFactor inflates great-circle distances towards typical road distances.
const roadFactor = 1.3

// averageSpeedKmh is used to estimate durations for offline routes.
const averageSpeedKmh = 50.0

func estimateMatrix(points []geo.Coordinate) [][]float64 {
	out := make([][]float64, len(points))
	for i := range points {
		out[i] = make([]float64, len(points))
		for j := range points {
			if i != j {
				out[i][j] = geo.HaversineKm(points[i], points[j]) * roadFactor
			}
		}
	}
	return out
}

func estimateRoute(points []geo.Coordinate) Route {
	geometry := make([]geo.Coordinate, len(points))
	copy(geometry, points)
	var km float64
	for i := 1; i < len(points); i++ {
		km += geo.HaversineKm(points[i-1], points[i]) * roadFactor
	}
	return Route{
		Geometry:   geometry,
		DistanceKm: km,
		Duration:   time.Duration(km / averageSpeedKmh * float64(time.Hour)),
	}
}
