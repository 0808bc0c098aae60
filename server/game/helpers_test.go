package game

import (
	"math"
	"time"
)

var t0 = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

// pt returns the point north/east meters from (0, 0), stamped i seconds after t0.
func pt(north, east float64, i int) RoutePoint {
	lat, lng := offsetMeters(RoutePoint{}, north, east)
	return RoutePoint{Lat: lat, Lng: lng, Time: t0.Add(time.Duration(i) * time.Second)}
}

// squareLoop walks a 50 m square (east, north, west, south) in 12 samples
// spaced evenly along the perimeter. Sample 11 lands 16.7 m from sample 0.
func squareLoop() []RoutePoint {
	const side = 50.0
	step := 4 * side / 12
	pts := make([]RoutePoint, 12)
	for k := range pts {
		s := float64(k) * step
		var n, e float64
		switch {
		case s <= side:
			e = s
		case s <= 2*side:
			e, n = side, s-side
		case s <= 3*side:
			e, n = 3*side-s, side
		default:
			n = 4*side - s
		}
		pts[k] = pt(n, e, k)
	}
	return pts
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
