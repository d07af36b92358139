package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alerts "geotrack-cloud/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts. Alerts are
// append-only; only the is_read flag is ever mutated. Every read and
// mutation is scoped to devices owned by the requesting user, so ids
// referencing another user's alerts are silently ignored instead of
// revealing their existence.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.DeviceID == "" || alert.Type == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, device_id, user_id, type, message, is_read, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
		alert.ID,
		alert.DeviceID,
		nullableString(alert.UserID),
		alert.Type,
		alert.Message,
		alert.IsRead,
		alert.CreatedAt,
	)
	return err
}

// ListUnread returns unread alerts across all devices owned by the
// user, newest first.
func (r *AlertRepository) ListUnread(ctx context.Context, userID string) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT a.id, a.device_id, a.user_id, a.type, a.message, a.is_read, a.created_at
FROM alerts a
JOIN devices d ON d.id = a.device_id
WHERE d.user_id = $1 AND a.is_read = FALSE
ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// MarkRead flips is_read for the given ids, restricted to alerts whose
// device is owned by userID. Foreign ids simply match no row.
func (r *AlertRepository) MarkRead(ctx context.Context, userID string, ids []string) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE alerts
SET is_read = TRUE
WHERE id IN (%s)
	AND device_id IN (SELECT id FROM devices WHERE user_id = $1)`,
		strings.Join(placeholders, ", ")), args...)
	return err
}

// MarkAllReadForDevice flips is_read for one device's unread alerts,
// with the same ownership scoping. The device is addressed by its
// human device identifier.
func (r *AlertRepository) MarkAllReadForDevice(ctx context.Context, userID, deviceID string) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET is_read = TRUE
WHERE is_read = FALSE
	AND device_id IN (SELECT id FROM devices WHERE user_id = $1 AND device_id = $2)`,
		userID, deviceID)
	return err
}

// ListPaged returns one page of the user's alerts, newest first,
// together with the total page count.
func (r *AlertRepository) ListPaged(ctx context.Context, userID string, page, pageSize int) (*alerts.Page, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM alerts a
JOIN devices d ON d.id = a.device_id
WHERE d.user_id = $1`, userID).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT a.id, a.device_id, a.user_id, a.type, a.message, a.is_read, a.created_at
FROM alerts a
JOIN devices d ON d.id = a.device_id
WHERE d.user_id = $1
ORDER BY a.created_at DESC
LIMIT $2 OFFSET $3`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	totalPages := (total + pageSize - 1) / pageSize
	return &alerts.Page{Rows: items, TotalPages: totalPages}, nil
}

func scanAlerts(rows *sql.Rows) ([]alerts.Alert, error) {
	var out []alerts.Alert
	for rows.Next() {
		var a alerts.Alert
		var userID sql.NullString
		if err := rows.Scan(
			&a.ID,
			&a.DeviceID,
			&userID,
			&a.Type,
			&a.Message,
			&a.IsRead,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.UserID = userID.String
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
