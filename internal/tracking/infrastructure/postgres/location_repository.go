package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	tracking "geotrack-cloud/internal/tracking/domain"
)

// LocationRepository is a Postgres read-side repository for locations.
// Locations are written only through the ingest transaction and removed
// only by the device cascade delete.
type LocationRepository struct {
	db *sql.DB
}

// NewLocationRepository constructs a repository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// ListByDevice returns locations for a device within [from, to),
// ascending by timestamp. Zero bounds mean unbounded.
func (r *LocationRepository) ListByDevice(ctx context.Context, deviceID string, from, to time.Time) ([]tracking.Location, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("location repo: nil db")
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, device_id, user_id, lat, lon, speed, altitude, accuracy, satellites, ts
FROM locations
WHERE device_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, deviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []tracking.Location
	for rows.Next() {
		var l tracking.Location
		var speed, altitude, accuracy sql.NullFloat64
		var satellites sql.NullInt64
		if err := rows.Scan(
			&l.ID,
			&l.DeviceID,
			&l.UserID,
			&l.Lat,
			&l.Lon,
			&speed,
			&altitude,
			&accuracy,
			&satellites,
			&l.Timestamp,
		); err != nil {
			return nil, err
		}
		l.Timestamp = l.Timestamp.UTC()
		if speed.Valid {
			l.Speed = &speed.Float64
		}
		if altitude.Valid {
			l.Altitude = &altitude.Float64
		}
		if accuracy.Valid {
			l.Accuracy = &accuracy.Float64
		}
		if satellites.Valid {
			n := int(satellites.Int64)
			l.Satellites = &n
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

// CountByDevice returns the number of stored locations for a device.
func (r *LocationRepository) CountByDevice(ctx context.Context, deviceID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("location repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM locations WHERE device_id = $1`, deviceID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
