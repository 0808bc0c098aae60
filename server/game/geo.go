package game

import "math"

// EarthRadius is the mean earth radius in meters used by Distance.
const EarthRadius = 6371000.0

// metersPerDegree is the length of one degree of latitude on the EarthRadius sphere.
const metersPerDegree = EarthRadius * math.Pi / 180

// Orientation is the turn direction of an ordered point triple.
type Orientation int

const (
	Collinear Orientation = iota
	Clockwise
	CounterClockwise
)

func (o Orientation) String() string {
	switch o {
	case Clockwise:
		return "clockwise"
	case CounterClockwise:
		return "counterclockwise"
	default:
		return "collinear"
	}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b RoutePoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if s > 1 {
		s = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(s))
}

// cross2D returns the cross product of (q-p) and (r-p), treating lat as x and lng as y.
func cross2D(p, q, r RoutePoint) float64 {
	return (q.Lat-p.Lat)*(r.Lng-p.Lng) - (q.Lng-p.Lng)*(r.Lat-p.Lat)
}

// Orient classifies the turn p -> q -> r.
func Orient(p, q, r RoutePoint) Orientation {
	c := cross2D(p, q, r)
	switch {
	case c > 0:
		return CounterClockwise
	case c < 0:
		return Clockwise
	default:
		return Collinear
	}
}

// SegmentsIntersect reports whether segments a1-a2 and b1-b2 properly cross.
// Touching endpoints and collinear overlap do not count.
func SegmentsIntersect(a1, a2, b1, b2 RoutePoint) bool {
	o1 := Orient(a1, a2, b1)
	o2 := Orient(a1, a2, b2)
	o3 := Orient(b1, b2, a1)
	o4 := Orient(b1, b2, a2)
	if o1 == Collinear || o2 == Collinear || o3 == Collinear || o4 == Collinear {
		return false
	}
	return o1 != o2 && o3 != o4
}

// PolygonArea returns the area of ring in square meters. The ring is projected
// onto a local equirectangular plane centered on its mean latitude and measured
// with the shoelace formula. The closing edge is implied.
func PolygonArea(ring []RoutePoint) float64 {
	if len(ring) < 3 {
		return 0
	}
	var meanLat float64
	for _, p := range ring {
		meanLat += p.Lat
	}
	meanLat /= float64(len(ring))
	kx := metersPerDegree * math.Cos(meanLat*math.Pi/180)
	ky := metersPerDegree

	origin := ring[0]
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		xi, yi := (ring[i].Lng-origin.Lng)*kx, (ring[i].Lat-origin.Lat)*ky
		xj, yj := (ring[j].Lng-origin.Lng)*kx, (ring[j].Lat-origin.Lat)*ky
		sum += xi*yj - xj*yi
	}
	return math.Abs(sum) / 2
}

// offsetMeters moves p north and east by the given meters.
func offsetMeters(p RoutePoint, north, east float64) (lat, lng float64) {
	lat = p.Lat + north/metersPerDegree
	k := math.Cos(p.Lat * math.Pi / 180)
	if k < 1e-9 {
		k = 1e-9
	}
	lng = p.Lng + east/(metersPerDegree*k)
	return lat, lng
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// NormalizeHeading wraps a bearing in degrees into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
