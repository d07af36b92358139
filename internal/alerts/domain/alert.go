package alerts

import "time"

// Alert type tags created by the geofence state machine. The column is
// free-form; administrative tooling may write other tags.
const (
	TypeGeofence       = "geofence"
	TypeGeofenceReturn = "geofence_return"
)

// Alert is an append-only notification record. Only IsRead is ever
// mutated after creation.
type Alert struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id,omitempty"` // empty for system-wide alerts
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of alerts together with the derived page count.
type Page struct {
	Rows       []Alert `json:"rows"`
	TotalPages int     `json:"total_pages"`
}
