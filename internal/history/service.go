package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"geotrack-cloud/internal/observability/metrics"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// DefaultThresholdMeters is the compaction threshold used when the
// caller does not request one.
const DefaultThresholdMeters = 20.0

// LocationLister reads a device's stored track, ascending by timestamp.
type LocationLister interface {
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time) ([]tracking.Location, error)
}

// Service assembles compacted history views and exports.
type Service struct {
	locations LocationLister
	logger    *zap.Logger
}

// NewService constructs a history service.
func NewService(locations LocationLister, logger *zap.Logger) (*Service, error) {
	if locations == nil {
		return nil, errors.New("history: nil location lister")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{locations: locations, logger: logger}, nil
}

// Track returns the device's clustered history for a time range.
func (s *Service) Track(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]ClusterPoint, error) {
	if device == nil {
		return nil, tracking.ErrNotFound
	}
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}

	points, err := s.locations.ListByDevice(ctx, device.ID, from, to)
	if err != nil {
		return nil, err
	}
	return ClusterLocations(points, thresholdMeters), nil
}

// ExportXLSX renders the clustered track as a spreadsheet.
func (s *Service) ExportXLSX(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]byte, error) {
	clusters, err := s.Track(ctx, device, from, to, thresholdMeters)
	if err != nil {
		metrics.IncExport("xlsx", "error")
		return nil, err
	}
	data, err := BuildTrackXLSX(device, clusters)
	if err != nil {
		metrics.IncExport("xlsx", "error")
		return nil, err
	}
	metrics.IncExport("xlsx", "success")
	return data, nil
}

// ExportPDF renders the clustered track as a PDF document.
func (s *Service) ExportPDF(ctx context.Context, device *tracking.Device, from, to time.Time, thresholdMeters float64) ([]byte, error) {
	clusters, err := s.Track(ctx, device, from, to, thresholdMeters)
	if err != nil {
		metrics.IncExport("pdf", "error")
		return nil, err
	}
	data, err := BuildTrackPDF(device, clusters)
	if err != nil {
		metrics.IncExport("pdf", "error")
		return nil, err
	}
	metrics.IncExport("pdf", "success")
	return data, nil
}
