package tracking

import "time"

// Power status values reported by devices. An empty string means the
// status is unknown.
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// Power instruction values. An empty string means no instruction is
// pending.
const (
	InstructionNone    = ""
	InstructionTurnOff = "turn_off"
)

// Device operating modes.
const (
	ModeSimple = "simple"
	ModeBatch  = "batch"
)

// Device is a tracked unit owned by exactly one user.
type Device struct {
	ID                  string         `json:"id"`
	DeviceID            string         `json:"device_id"`
	UserID              string         `json:"user_id"`
	LastSeen            time.Time      `json:"last_seen"`
	PowerStatus         string         `json:"power_status,omitempty"`
	PowerInstruction    string         `json:"power_instruction,omitempty"`
	DeviceType          string         `json:"device_type,omitempty"`
	Geofence            *GeofenceShape `json:"geofence,omitempty"`
	GeofenceAlertActive bool           `json:"geofence_alert_active"`
	IntervalGPS         int            `json:"interval_gps"`
	IntervalSend        int            `json:"interval_send"`
	SatellitesRequired  int            `json:"satellites_required"`
	Mode                string         `json:"mode"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// StatusUpdate carries the device fields applied during an ingest.
// Nil fields keep the stored value; a non-nil field is written only
// when it differs from the stored one. The substitution rule is the
// same for every field: reported-if-present, else stored.
type StatusUpdate struct {
	LastSeen    time.Time
	DeviceType  *string
	PowerStatus *string
}

// NormalizePowerStatus maps a reported power status onto the known set.
// Unrecognized values normalize to nil so they are never stored verbatim.
func NormalizePowerStatus(reported *string) *string {
	if reported == nil {
		return nil
	}
	switch *reported {
	case PowerOn, PowerOff:
		return reported
	default:
		return nil
	}
}

// ReconcilePowerInstruction returns the instruction that should remain
// pending after a device-status update. A pending turn_off clears once
// the device reports itself powered off; every other combination leaves
// the instruction untouched.
func ReconcilePowerInstruction(instruction, status string) string {
	if instruction == InstructionTurnOff && status == PowerOff {
		return InstructionNone
	}
	return instruction
}
