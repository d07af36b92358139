package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tracking "geotrack-cloud/internal/tracking/domain"
)

type fakeStore struct {
	calls      int
	deviceID   string
	locations  []tracking.Location
	update     tracking.StatusUpdate
	returnsDev *tracking.Device
	err        error
}

func (f *fakeStore) IngestBatch(_ context.Context, deviceID string, locations []tracking.Location, update tracking.StatusUpdate) (*tracking.Device, error) {
	f.calls++
	f.deviceID = deviceID
	f.locations = locations
	f.update = update
	if f.err != nil {
		return nil, f.err
	}
	return f.returnsDev, nil
}

type fakeEvaluator struct {
	calls     int
	device    *tracking.Device
	location  tracking.Location
	returnErr error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, device *tracking.Device, location tracking.Location) error {
	f.calls++
	f.device = device
	f.location = location
	return f.returnErr
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func testDevice() *tracking.Device {
	return &tracking.Device{
		ID:       "dev-1",
		DeviceID: "tracker-7",
		UserID:   "user-1",
	}
}

func newTestService(t *testing.T, store *fakeStore, opts ...IngestServiceOption) *IngestService {
	t.Helper()
	svc, err := NewIngestService(store, zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func TestIngestInsertsAllPoints(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{returnsDev: testDevice()}
	counter := 0
	svc := newTestService(t, store,
		WithClock(stubClock{now: now}),
		WithIDFactory(func() string { counter++; return fmt.Sprintf("loc-%d", counter) }),
	)

	points := []tracking.Point{
		{Lat: floatPtr(50.0), Lon: floatPtr(14.0), Timestamp: now.Add(-2 * time.Minute)},
		{Lat: floatPtr(50.001), Lon: floatPtr(14.001), Timestamp: now.Add(-time.Minute)},
		{Lat: floatPtr(50.002), Lon: floatPtr(14.002)},
	}

	res, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.InsertedCount)
	require.Len(t, store.locations, 3)

	first := store.locations[0]
	assert.Equal(t, "loc-1", first.ID)
	assert.Equal(t, "dev-1", first.DeviceID)
	assert.Equal(t, "user-1", first.UserID)
	assert.Equal(t, 50.0, first.Lat)
	assert.Equal(t, now.Add(-2*time.Minute), first.Timestamp)

	// Missing timestamp falls back to ingest time.
	assert.Equal(t, now, store.locations[2].Timestamp)
	assert.Equal(t, now, store.update.LastSeen)
}

func TestIngestRejectsBatchWithOneBadPoint(t *testing.T) {
	store := &fakeStore{returnsDev: testDevice()}
	svc := newTestService(t, store)

	points := []tracking.Point{
		{Lat: floatPtr(50.0), Lon: floatPtr(14.0)},
		{Lat: floatPtr(50.001)}, // lon missing
	}

	_, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{})
	require.ErrorIs(t, err, tracking.ErrInvalidPayload)
	assert.Zero(t, store.calls, "no write may happen for an invalid batch")
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	store := &fakeStore{returnsDev: testDevice()}
	svc := newTestService(t, store)

	_, err := svc.Ingest(context.Background(), testDevice(), nil, IngestOptions{})
	require.ErrorIs(t, err, tracking.ErrInvalidPayload)
	assert.Zero(t, store.calls)
}

func TestIngestRejectsNilDevice(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)

	_, err := svc.Ingest(context.Background(), nil, []tracking.Point{{Lat: floatPtr(1), Lon: floatPtr(1)}}, IngestOptions{})
	require.ErrorIs(t, err, tracking.ErrNotFound)
	assert.Zero(t, store.calls)
}

func TestIngestNormalizesPowerStatus(t *testing.T) {
	store := &fakeStore{returnsDev: testDevice()}
	svc := newTestService(t, store)

	points := []tracking.Point{{Lat: floatPtr(50.0), Lon: floatPtr(14.0)}}

	_, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{
		ClientType:  strPtr("gps-v2"),
		PowerStatus: strPtr("rebooting"),
	})
	require.NoError(t, err)
	require.NotNil(t, store.update.DeviceType)
	assert.Equal(t, "gps-v2", *store.update.DeviceType)
	assert.Nil(t, store.update.PowerStatus, "unknown power status is dropped, not stored")

	_, err = svc.Ingest(context.Background(), testDevice(), points, IngestOptions{
		PowerStatus: strPtr(tracking.PowerOff),
	})
	require.NoError(t, err)
	require.NotNil(t, store.update.PowerStatus)
	assert.Equal(t, tracking.PowerOff, *store.update.PowerStatus)
}

func TestIngestEvaluatesLastPointOnly(t *testing.T) {
	store := &fakeStore{returnsDev: testDevice()}
	eval := &fakeEvaluator{}
	svc := newTestService(t, store, WithGeofenceEvaluator(eval))

	points := []tracking.Point{
		{Lat: floatPtr(50.0), Lon: floatPtr(14.0)},
		{Lat: floatPtr(51.0), Lon: floatPtr(15.0)},
		{Lat: floatPtr(52.0), Lon: floatPtr(16.0)},
	}

	_, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, eval.calls)
	assert.Equal(t, 52.0, eval.location.Lat)
	assert.Equal(t, 16.0, eval.location.Lon)
	assert.Same(t, store.returnsDev, eval.device, "evaluator sees the post-write device state")
}

func TestIngestSkipsEvaluationOnStorageFailure(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("insert: %w", tracking.ErrStorage)}
	eval := &fakeEvaluator{}
	svc := newTestService(t, store, WithGeofenceEvaluator(eval))

	points := []tracking.Point{{Lat: floatPtr(50.0), Lon: floatPtr(14.0)}}

	_, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{})
	require.ErrorIs(t, err, tracking.ErrStorage)
	assert.Zero(t, eval.calls)
}

func TestIngestSwallowsEvaluationFailure(t *testing.T) {
	store := &fakeStore{returnsDev: testDevice()}
	eval := &fakeEvaluator{returnErr: errors.New("notify backend down")}
	svc := newTestService(t, store, WithGeofenceEvaluator(eval))

	points := []tracking.Point{{Lat: floatPtr(50.0), Lon: floatPtr(14.0)}}

	res, err := svc.Ingest(context.Background(), testDevice(), points, IngestOptions{})
	require.NoError(t, err, "a post-commit evaluation failure never fails the ingest")
	assert.Equal(t, 1, res.InsertedCount)
	assert.Equal(t, 1, eval.calls)
}

func TestNewIngestServiceRequiresStore(t *testing.T) {
	_, err := NewIngestService(nil, zap.NewNop())
	require.Error(t, err)
}
