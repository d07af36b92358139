// Package geo provides the geometric primitives used by geofence
// evaluation and track clustering: great-circle distance and
// containment tests for circular and polygonal regions.
//
// Polygon containment treats (longitude, latitude) as planar
// coordinates. This is a deliberate small-area approximation, adequate
// for geofences spanning at most a few kilometres; it is not
// geodesically exact.
package geo

import "math"

const earthRadiusMeters = 6371000

// Vertex is one (longitude, latitude) corner of a polygon ring.
type Vertex struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Haversine returns the great-circle distance in meters between two
// latitude/longitude points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// InCircle reports whether a point lies within radiusMeters of the
// circle center. A point exactly on the boundary counts as inside.
func InCircle(lat, lon, centerLat, centerLon, radiusMeters float64) bool {
	return Haversine(lat, lon, centerLat, centerLon) <= radiusMeters
}

// InPolygon reports whether a point lies inside the ring using the
// even-odd ray-casting rule. The ring is implicitly closed; rings with
// fewer than three vertices contain nothing.
func InPolygon(lat, lon float64, ring []Vertex) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > lat) != (vj.Lat > lat) &&
			lon < (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
