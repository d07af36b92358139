// Seeds demo users, devices, and location history for local runs and
// load testing.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn            string
	users          int
	devicesPerUser int
	days           int
	pointsPerDay   int
	withGeofence   bool
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("DATABASE_DSN or -dsn is required")
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	start := time.Now().UTC().AddDate(0, 0, -cfg.days)

	for u := 0; u < cfg.users; u++ {
		userID := uuid.NewString()
		email := fmt.Sprintf("demo-%d@example.com", u+1)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO users (id, email, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
			userID, email,
		); err != nil {
			log.Fatalf("insert user: %v", err)
		}

		for d := 0; d < cfg.devicesPerUser; d++ {
			deviceID := uuid.NewString()
			humanID := fmt.Sprintf("demo-tracker-%d-%d", u+1, d+1)
			lat := 50.0 + rand.Float64()*0.5
			lon := 14.0 + rand.Float64()*0.5

			var geofence any
			if cfg.withGeofence {
				shape := map[string]any{
					"kind":          "circle",
					"center_lat":    lat,
					"center_lon":    lon,
					"radius_meters": 500.0,
				}
				raw, _ := json.Marshal(shape)
				geofence = string(raw)
			}

			if _, err := db.ExecContext(ctx, `
				INSERT INTO devices (
					id, device_id, user_id, last_seen, power_status, power_instruction,
					device_type, geofence, geofence_alert_active,
					interval_gps, interval_send, satellites_required, mode,
					created_at, updated_at
				) VALUES ($1, $2, $3, NOW(), 'on', '', 'gps-v2', $4, FALSE, 10, 60, 4, 'batch', NOW(), NOW())
				ON CONFLICT DO NOTHING`,
				deviceID, humanID, userID, geofence,
			); err != nil {
				log.Fatalf("insert device: %v", err)
			}

			if err := seedTrack(ctx, db, deviceID, userID, lat, lon, start, cfg.days, cfg.pointsPerDay); err != nil {
				log.Fatalf("seed track for %s: %v", humanID, err)
			}
			log.Printf("seeded %s: %d points", humanID, cfg.days*cfg.pointsPerDay)
		}
	}
}

// seedTrack writes a random walk: long stationary stretches with short
// hops, so clustering has something to compact.
func seedTrack(ctx context.Context, db *sql.DB, deviceID, userID string, lat, lon float64, start time.Time, days, pointsPerDay int) error {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO locations (id, device_id, user_id, lat, lon, speed, altitude, accuracy, satellites, ts)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, $7, $8)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	total := days * pointsPerDay
	step := time.Duration(days) * 24 * time.Hour / time.Duration(total)
	for i := 0; i < total; i++ {
		// One point in ten jumps far enough to close a cluster.
		if rand.Float64() < 0.1 {
			lat += (rand.Float64() - 0.5) * 0.01
			lon += (rand.Float64() - 0.5) * 0.01
		} else {
			lat += (rand.Float64() - 0.5) * 0.00005
			lon += (rand.Float64() - 0.5) * 0.00005
		}
		speed := rand.Float64() * 5
		sats := 4 + rand.Intn(8)
		ts := start.Add(time.Duration(i) * step)
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), deviceID, userID, lat, lon, speed, sats, ts); err != nil {
			return err
		}
	}
	return nil
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.dsn, "dsn", envDefault("DATABASE_DSN", envDefault("PG_DSN", "")), "postgres DSN")
	flag.IntVar(&cfg.users, "users", 2, "number of demo users")
	flag.IntVar(&cfg.devicesPerUser, "devices-per-user", 3, "devices per user")
	flag.IntVar(&cfg.days, "days", 7, "days of history")
	flag.IntVar(&cfg.pointsPerDay, "points-per-day", 288, "locations per device per day")
	flag.BoolVar(&cfg.withGeofence, "geofence", true, "attach a circular geofence to each device")
	flag.Parse()
	return cfg
}

func envDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
