// Package historyhttp serves compacted track views and exports.
package historyhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"geotrack-cloud/internal/history"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// DeviceResolver looks a device up by its human identifier.
type DeviceResolver interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*tracking.Device, error)
}

// TrackService assembles clustered history and exports.
type TrackService interface {
	Track(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]history.ClusterPoint, error)
	ExportXLSX(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]byte, error)
	ExportPDF(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]byte, error)
}

// Handler serves GET /api/v1/track[.xlsx|.pdf]. The caller identity
// arrives in X-User-ID; a device owned by someone else reads as absent.
type Handler struct {
	devices DeviceResolver
	service TrackService
	logger  *zap.Logger
}

// NewHandler constructs a track handler.
func NewHandler(devices DeviceResolver, service TrackService, logger *zap.Logger) (*Handler, error) {
	if devices == nil {
		return nil, errors.New("historyhttp: nil device resolver")
	}
	if service == nil {
		return nil, errors.New("historyhttp: nil track service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{devices: devices, service: service, logger: logger}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	deviceID := query.Get("device_id")
	if deviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		h.logger.Error("track: device lookup failed", zap.String("device_id", deviceID), zap.Error(err))
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if device.UserID != userID {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	from, to, err := parseRange(query.Get("from"), query.Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	threshold := parseThreshold(query.Get("threshold"))

	switch {
	case strings.HasSuffix(r.URL.Path, ".xlsx"):
		data, err := h.service.ExportXLSX(r.Context(), device, from, to, threshold)
		if err != nil {
			h.fail(w, device, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", device.DeviceID+"-track.xlsx"))
		_, _ = w.Write(data)
	case strings.HasSuffix(r.URL.Path, ".pdf"):
		data, err := h.service.ExportPDF(r.Context(), device, from, to, threshold)
		if err != nil {
			h.fail(w, device, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", device.DeviceID+"-track.pdf"))
		_, _ = w.Write(data)
	default:
		clusters, err := h.service.Track(r.Context(), device, from, to, threshold)
		if err != nil {
			h.fail(w, device, err)
			return
		}
		writeTrackJSON(w, clusters)
	}
}

func (h *Handler) fail(w http.ResponseWriter, device *tracking.Device, err error) {
	h.logger.Error("track: build failed", zap.String("device_id", device.DeviceID), zap.Error(err))
	http.Error(w, "track error", http.StatusInternalServerError)
}

type trackPoint struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Count     int        `json:"count"`
	Timestamp *time.Time `json:"ts,omitempty"`
}

func writeTrackJSON(w http.ResponseWriter, clusters []history.ClusterPoint) {
	points := make([]trackPoint, 0, len(clusters))
	for _, c := range clusters {
		p := trackPoint{
			Lat:       c.Lat,
			Lon:       c.Lon,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Count:     c.Size(),
		}
		if c.Original != nil {
			p.Lat = c.Original.Lat
			p.Lon = c.Original.Lon
			p.StartTime = c.Original.Timestamp
			p.EndTime = c.Original.Timestamp
			ts := c.Original.Timestamp
			p.Timestamp = &ts
		}
		points = append(points, p)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"track": points})
}

// parseRange accepts RFC3339 bounds; absent bounds default to the last
// 24 hours ending now.
func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from")
		}
		from = parsed
	}
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to")
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to before from")
	}
	return from, to, nil
}

func parseThreshold(raw string) float64 {
	if raw == "" {
		return history.DefaultThresholdMeters
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return history.DefaultThresholdMeters
	}
	return parsed
}
