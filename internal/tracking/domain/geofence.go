package tracking

import (
	"errors"

	"geotrack-cloud/internal/geo"
)

// Geofence shape kinds.
const (
	GeofenceCircle  = "circle"
	GeofencePolygon = "polygon"
)

// GeofenceShape is a tagged variant: either a circle around a center
// point or a polygon ring. Shape-specific fields are validated at the
// storage boundary, not at evaluation time.
type GeofenceShape struct {
	Kind string `json:"kind"`

	// Circle fields.
	CenterLat    float64 `json:"center_lat,omitempty"`
	CenterLon    float64 `json:"center_lon,omitempty"`
	RadiusMeters float64 `json:"radius_meters,omitempty"`

	// Polygon fields. The ring is implicitly closed.
	Ring []geo.Vertex `json:"ring,omitempty"`
}

// Validate checks shape invariants for the tagged kind.
func (s GeofenceShape) Validate() error {
	switch s.Kind {
	case GeofenceCircle:
		if s.CenterLat < -90 || s.CenterLat > 90 {
			return errors.New("geofence: circle center latitude out of range")
		}
		if s.CenterLon < -180 || s.CenterLon > 180 {
			return errors.New("geofence: circle center longitude out of range")
		}
		if s.RadiusMeters <= 0 {
			return errors.New("geofence: circle radius must be positive")
		}
		return nil
	case GeofencePolygon:
		if len(s.Ring) < 3 {
			return errors.New("geofence: polygon ring needs at least three vertices")
		}
		return nil
	default:
		return errors.New("geofence: unknown shape kind")
	}
}

// Contains reports whether the point is inside the shape. Circle
// membership is a haversine distance test with the boundary counting as
// inside; polygon membership uses even-odd ray casting over planar
// lon/lat coordinates.
func (s GeofenceShape) Contains(lat, lon float64) bool {
	switch s.Kind {
	case GeofenceCircle:
		return geo.InCircle(lat, lon, s.CenterLat, s.CenterLon, s.RadiusMeters)
	case GeofencePolygon:
		return geo.InPolygon(lat, lon, s.Ring)
	default:
		return false
	}
}
