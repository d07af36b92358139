package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geotrack-cloud/internal/observability/metrics"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// Store runs the atomic ingest transaction: one location row per
// point plus the device status update, all or nothing.
type Store interface {
	IngestBatch(ctx context.Context, deviceID string, locations []tracking.Location, update tracking.StatusUpdate) (*tracking.Device, error)
}

// GeofenceEvaluator receives the batch's last point after commit.
type GeofenceEvaluator interface {
	Evaluate(ctx context.Context, device *tracking.Device, location tracking.Location) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// IngestResult reports a committed ingest.
type IngestResult struct {
	InsertedCount int
	Device        *tracking.Device
}

// IngestOptions carries the optional reported fields of one ingest
// call. Nil means not reported; the stored value is kept.
type IngestOptions struct {
	ClientType  *string
	PowerStatus *string
}

// IngestService validates and persists location batches. The write is
// one transaction; geofence evaluation runs after commit so that its
// side effects (alert, notification) can never roll back an already
// committed batch, and a slow notifier never holds a database lock.
type IngestService struct {
	store    Store
	geofence GeofenceEvaluator
	logger   *zap.Logger
	clock    Clock
	newID    func() string
}

// IngestServiceOption customizes the service.
type IngestServiceOption func(*IngestService)

// WithGeofenceEvaluator assigns the post-commit evaluator.
func WithGeofenceEvaluator(evaluator GeofenceEvaluator) IngestServiceOption {
	return func(s *IngestService) {
		s.geofence = evaluator
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) IngestServiceOption {
	return func(s *IngestService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDFactory overrides location id generation.
func WithIDFactory(factory func() string) IngestServiceOption {
	return func(s *IngestService) {
		if factory != nil {
			s.newID = factory
		}
	}
}

// NewIngestService constructs an ingest service.
func NewIngestService(store Store, logger *zap.Logger, opts ...IngestServiceOption) (*IngestService, error) {
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &IngestService{
		store:  store,
		logger: logger,
		clock:  systemClock{},
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest persists a batch of points for an already-resolved device.
// Every point needs latitude and longitude; one bad point rejects the
// whole batch before any write. A point's missing or non-positive
// timestamp falls back to the ingest time. After commit the last
// element of the batch, in input order, feeds the geofence evaluator.
func (s *IngestService) Ingest(ctx context.Context, device *tracking.Device, points []tracking.Point, opts IngestOptions) (*IngestResult, error) {
	start := s.clock.Now()
	result := metrics.IngestResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if device == nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("missing_device")
		return nil, tracking.ErrNotFound
	}
	if len(points) == 0 {
		result = metrics.IngestResultError
		metrics.IncIngestError("empty_batch")
		return nil, fmt.Errorf("empty batch: %w", tracking.ErrInvalidPayload)
	}
	for i, p := range points {
		if err := p.Validate(); err != nil {
			result = metrics.IngestResultError
			metrics.IncIngestError("invalid_point")
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}

	now := start
	locations := make([]tracking.Location, 0, len(points))
	for _, p := range points {
		ts := p.Timestamp
		if ts.IsZero() || ts.Unix() <= 0 {
			ts = now
		}
		locations = append(locations, tracking.Location{
			ID:         s.newID(),
			DeviceID:   device.ID,
			UserID:     device.UserID,
			Lat:        *p.Lat,
			Lon:        *p.Lon,
			Speed:      p.Speed,
			Altitude:   p.Altitude,
			Accuracy:   p.Accuracy,
			Satellites: p.Satellites,
			Timestamp:  ts.UTC(),
		})
	}

	update := tracking.StatusUpdate{
		LastSeen:    now,
		DeviceType:  opts.ClientType,
		PowerStatus: tracking.NormalizePowerStatus(opts.PowerStatus),
	}

	updated, err := s.store.IngestBatch(ctx, device.ID, locations, update)
	if err != nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("storage")
		return nil, err
	}
	metrics.AddIngestedPoints(len(locations))

	// The evaluator sees the last element of the input batch, which is
	// not necessarily the chronologically latest point when input was
	// out of order. A batch that exits and returns within itself only
	// reflects the last point's state; intermediate crossings are not
	// alerted.
	if s.geofence != nil {
		last := locations[len(locations)-1]
		if err := s.geofence.Evaluate(ctx, updated, last); err != nil {
			s.logger.Error("geofence evaluation failed",
				zap.String("device_id", updated.DeviceID),
				zap.Error(err),
			)
		}
	}

	return &IngestResult{InsertedCount: len(locations), Device: updated}, nil
}
