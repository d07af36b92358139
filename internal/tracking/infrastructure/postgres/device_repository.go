package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tracking "geotrack-cloud/internal/tracking/domain"
)

const deviceColumns = `id, device_id, user_id, last_seen, power_status, power_instruction,
	device_type, geofence, geofence_alert_active, interval_gps, interval_send,
	satellites_required, mode, created_at, updated_at`

// DeviceRepository is a Postgres repository for devices.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetByID fetches a device by primary id.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*tracking.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM devices
WHERE id = $1`, deviceColumns), id)
	return scanDevice(row)
}

// GetByDeviceID fetches a device by its human device identifier.
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*tracking.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM devices
WHERE device_id = $1`, deviceColumns), deviceID)
	return scanDevice(row)
}

// SetGeofence replaces or clears a device geofence. Shape invariants
// are enforced here, at the storage boundary.
func (r *DeviceRepository) SetGeofence(ctx context.Context, id string, shape *tracking.GeofenceShape) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	var payload any
	if shape != nil {
		if err := shape.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(shape)
		if err != nil {
			return err
		}
		payload = data
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE devices
SET geofence = $1, updated_at = $2
WHERE id = $3`, payload, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetGeofenceAlertActive persists the geofence hysteresis flag.
func (r *DeviceRepository) SetGeofenceAlertActive(ctx context.Context, id string, active bool) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE devices
SET geofence_alert_active = $1, updated_at = $2
WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetPowerInstruction stores an operator instruction. Unrecognized
// values are rejected rather than stored verbatim; the empty string is
// the external force-clear and is always permitted.
func (r *DeviceRepository) SetPowerInstruction(ctx context.Context, id, instruction string) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	switch instruction {
	case tracking.InstructionNone, tracking.InstructionTurnOff:
	default:
		return errors.New("device repo: unknown power instruction")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE devices
SET power_instruction = $1, updated_at = $2
WHERE id = $3`, instruction, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteCascade removes a device together with its locations and
// alerts as one transaction. The cascade is explicit; it never relies
// on foreign-key actions in the schema.
func (r *DeviceRepository) DeleteCascade(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM locations WHERE device_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE device_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := requireRow(res); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*tracking.Device, error) {
	var device tracking.Device
	var powerStatus, powerInstruction, deviceType, mode sql.NullString
	var geofence []byte
	if err := row.Scan(
		&device.ID,
		&device.DeviceID,
		&device.UserID,
		&device.LastSeen,
		&powerStatus,
		&powerInstruction,
		&deviceType,
		&geofence,
		&device.GeofenceAlertActive,
		&device.IntervalGPS,
		&device.IntervalSend,
		&device.SatellitesRequired,
		&mode,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracking.ErrNotFound
		}
		return nil, err
	}
	device.PowerStatus = powerStatus.String
	device.PowerInstruction = powerInstruction.String
	device.DeviceType = deviceType.String
	device.Mode = mode.String
	device.LastSeen = device.LastSeen.UTC()
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	if len(geofence) > 0 {
		var shape tracking.GeofenceShape
		if err := json.Unmarshal(geofence, &shape); err != nil {
			return nil, fmt.Errorf("device repo: decode geofence: %w", err)
		}
		if err := shape.Validate(); err != nil {
			return nil, fmt.Errorf("device repo: %w", err)
		}
		device.Geofence = &shape
	}
	return &device, nil
}
