// Package devicehttp exposes the ingest endpoint tracking devices post to.
package devicehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"geotrack-cloud/internal/tracking/application"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// DeviceResolver looks a device up by its human identifier.
type DeviceResolver interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*tracking.Device, error)
}

// Ingester persists a validated batch for a resolved device.
type Ingester interface {
	Ingest(ctx context.Context, device *tracking.Device, points []tracking.Point, opts application.IngestOptions) (*application.IngestResult, error)
}

// IngestHandler handles location uploads from devices.
type IngestHandler struct {
	devices  DeviceResolver
	ingester Ingester
	logger   *zap.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(devices DeviceResolver, ingester Ingester, logger *zap.Logger) (*IngestHandler, error) {
	if devices == nil {
		return nil, errors.New("devicehttp: nil device resolver")
	}
	if ingester == nil {
		return nil, errors.New("devicehttp: nil ingester")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{devices: devices, ingester: ingester, logger: logger}, nil
}

// ServeHTTP ingests a location batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("ingest: read body failed", zap.Error(err))
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("ingest: malformed json", zap.Error(err))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if req.DeviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetByDeviceID(r.Context(), req.DeviceID)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		h.logger.Error("ingest: device lookup failed",
			zap.String("device_id", req.DeviceID),
			zap.Error(err),
		)
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}

	points := req.toPoints()
	result, err := h.ingester.Ingest(r.Context(), device, points, application.IngestOptions{
		ClientType:  req.ClientType,
		PowerStatus: req.PowerStatus,
	})
	if err != nil {
		switch {
		case errors.Is(err, tracking.ErrInvalidPayload):
			http.Error(w, "invalid payload", http.StatusBadRequest)
		case errors.Is(err, tracking.ErrNotFound):
			http.Error(w, "unknown device", http.StatusNotFound)
		default:
			h.logger.Error("ingest: storage failure",
				zap.String("device_id", req.DeviceID),
				zap.Error(err),
			)
			http.Error(w, "storage error", http.StatusInternalServerError)
		}
		return
	}

	resp := ingestResponse{
		Inserted:         result.InsertedCount,
		PowerInstruction: result.Device.PowerInstruction,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type ingestRequest struct {
	DeviceID    string  `json:"device_id"`
	ClientType  *string `json:"client_type"`
	PowerStatus *string `json:"power_status"`

	// Single-point form: coordinates at the top level.
	pointPayload
	// Batch form takes precedence when present.
	Points []pointPayload `json:"points"`
}

type pointPayload struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Speed      *float64 `json:"speed"`
	Altitude   *float64 `json:"altitude"`
	Accuracy   *float64 `json:"accuracy"`
	Satellites *int     `json:"satellites"`
	TS         int64    `json:"ts"`
}

type ingestResponse struct {
	Inserted         int    `json:"inserted"`
	PowerInstruction string `json:"power_instruction,omitempty"`
}

// toPoints normalizes either request form into one batch. Validation
// of coordinate presence and range is the ingest service's job; the
// handler only reshapes.
func (r ingestRequest) toPoints() []tracking.Point {
	payloads := r.Points
	if len(payloads) == 0 && (r.Lat != nil || r.Lon != nil) {
		payloads = []pointPayload{r.pointPayload}
	}

	points := make([]tracking.Point, 0, len(payloads))
	for _, p := range payloads {
		points = append(points, tracking.Point{
			Lat:        p.Lat,
			Lon:        p.Lon,
			Speed:      p.Speed,
			Altitude:   p.Altitude,
			Accuracy:   p.Accuracy,
			Satellites: p.Satellites,
			Timestamp:  parseTimestamp(p.TS),
		})
	}
	return points
}

// parseTimestamp accepts seconds or milliseconds since the epoch. A
// non-positive value yields the zero time; the ingest service then
// substitutes the ingest time.
func parseTimestamp(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC()
	}
	return time.Unix(value, 0).UTC()
}
