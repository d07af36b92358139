package tracking

import "time"

// Location is one persisted GPS reading. Locations are immutable once
// written; they are created only by the ingestion pipeline and removed
// only by cascading device deletion.
type Location struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	UserID     string    `json:"user_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Speed      *float64  `json:"speed,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Satellites *int      `json:"satellites,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Point is one reading as supplied by a device, before persistence.
// Latitude and longitude are pointers so that an absent coordinate is
// distinguishable from zero; both are mandatory. A zero timestamp falls
// back to the ingest time.
type Point struct {
	Lat        *float64  `json:"lat"`
	Lon        *float64  `json:"lon"`
	Speed      *float64  `json:"speed,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Satellites *int      `json:"satellites,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Validate checks the mandatory geospatial fields.
func (p Point) Validate() error {
	if p.Lat == nil || p.Lon == nil {
		return ErrInvalidPayload
	}
	if *p.Lat < -90 || *p.Lat > 90 {
		return ErrInvalidPayload
	}
	if *p.Lon < -180 || *p.Lon > 180 {
		return ErrInvalidPayload
	}
	return nil
}
