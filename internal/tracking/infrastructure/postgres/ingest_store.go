package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	tracking "geotrack-cloud/internal/tracking/domain"
)

// IngestStore runs the single atomic ingest transaction: bulk location
// insert plus the device status update. The device row is read with
// FOR UPDATE so that concurrent ingests of the same device serialize
// instead of losing updates; distinct devices never contend.
type IngestStore struct {
	db *sql.DB
}

// NewIngestStore constructs a store.
func NewIngestStore(db *sql.DB) *IngestStore {
	return &IngestStore{db: db}
}

// IngestBatch inserts one location row per element and applies the
// status update to the device, all in one transaction. DeviceType and
// PowerStatus are written only when the reported value differs from
// the stored one; the power-instruction reconcile runs against the
// freshly updated status inside the same transaction. Returns the
// device as committed.
func (s *IngestStore) IngestBatch(ctx context.Context, deviceID string, locations []tracking.Location, update tracking.StatusUpdate) (*tracking.Device, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ingest store: nil db")
	}
	if len(locations) == 0 {
		return nil, errors.New("ingest store: empty batch")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM devices
WHERE id = $1
FOR UPDATE`, deviceColumns), deviceID)
	device, err := scanDevice(row)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, tracking.ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("load device", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO locations (
	id, device_id, user_id, lat, lon, speed, altitude, accuracy, satellites, ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, storageErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, l := range locations {
		if _, err := stmt.ExecContext(ctx,
			l.ID,
			device.ID,
			device.UserID,
			l.Lat,
			l.Lon,
			nullableFloat(l.Speed),
			nullableFloat(l.Altitude),
			nullableFloat(l.Accuracy),
			nullableInt(l.Satellites),
			l.Timestamp,
		); err != nil {
			_ = tx.Rollback()
			return nil, storageErr("insert location", err)
		}
	}

	device.LastSeen = update.LastSeen
	if update.DeviceType != nil && *update.DeviceType != device.DeviceType {
		device.DeviceType = *update.DeviceType
	}
	if update.PowerStatus != nil && *update.PowerStatus != device.PowerStatus {
		device.PowerStatus = *update.PowerStatus
	}
	device.PowerInstruction = tracking.ReconcilePowerInstruction(device.PowerInstruction, device.PowerStatus)
	device.UpdatedAt = update.LastSeen

	if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen = $1, device_type = $2, power_status = $3, power_instruction = $4, updated_at = $5
WHERE id = $6`,
		device.LastSeen,
		device.DeviceType,
		device.PowerStatus,
		device.PowerInstruction,
		device.UpdatedAt,
		device.ID,
	); err != nil {
		_ = tx.Rollback()
		return nil, storageErr("update device", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit", err)
	}
	return device, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("ingest store: %s: %v: %w", op, err, tracking.ErrStorage)
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
