package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	alerts "geotrack-cloud/internal/alerts/domain"
	"geotrack-cloud/internal/geo"
	tracking "geotrack-cloud/internal/tracking/domain"
)

type stubFlagWriter struct {
	calls []bool
	err   error
}

func (s *stubFlagWriter) SetGeofenceAlertActive(_ context.Context, _ string, active bool) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, active)
	return nil
}

type stubAlertCreator struct {
	created []alerts.Alert
	err     error
}

func (s *stubAlertCreator) Create(_ context.Context, alert *alerts.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *alert)
	return nil
}

type stubNotifier struct {
	events []NotificationEvent
}

func (s *stubNotifier) Notify(_ context.Context, event NotificationEvent) {
	s.events = append(s.events, event)
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func circleDevice(alertActive bool) *tracking.Device {
	return &tracking.Device{
		ID:       "dev-1",
		DeviceID: "tracker-7",
		UserID:   "user-1",
		Geofence: &tracking.GeofenceShape{
			Kind:         tracking.GeofenceCircle,
			CenterLat:    50.0,
			CenterLon:    14.0,
			RadiusMeters: 500,
		},
		GeofenceAlertActive: alertActive,
	}
}

func newEvaluator(t *testing.T, flags *stubFlagWriter, creator *stubAlertCreator, notifier *stubNotifier) *GeofenceEvaluator {
	t.Helper()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	evaluator, err := NewGeofenceEvaluator(flags, creator, zap.NewNop(),
		WithNotifier(notifier),
		WithClock(fixedClock{at: at}),
		WithIDFactory(func() string { return "al-1" }),
		WithEmailResolver(func(context.Context, *tracking.Device) string { return "owner@example.com" }),
	)
	require.NoError(t, err)
	return evaluator
}

// The point sits ~1000 m from the circle center with radius 500 m, so
// it is outside the fence.
func outsidePoint() tracking.Location {
	return tracking.Location{DeviceID: "dev-1", Lat: 50.009, Lon: 14.0, Timestamp: time.Now()}
}

func insidePoint() tracking.Location {
	return tracking.Location{DeviceID: "dev-1", Lat: 50.0, Lon: 14.0, Timestamp: time.Now()}
}

func TestEvaluateNoGeofenceIsNoop(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	evaluator := newEvaluator(t, flags, creator, &stubNotifier{})

	device := circleDevice(false)
	device.Geofence = nil

	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))
	assert.Empty(t, flags.calls)
	assert.Empty(t, creator.created)
}

func TestEvaluateLeaveRaisesExactlyOneAlert(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	notifier := &stubNotifier{}
	evaluator := newEvaluator(t, flags, creator, notifier)

	device := circleDevice(false)
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))

	assert.True(t, device.GeofenceAlertActive)
	assert.Equal(t, []bool{true}, flags.calls)
	require.Len(t, creator.created, 1)
	assert.Equal(t, alerts.TypeGeofence, creator.created[0].Type)
	assert.Equal(t, "tracker-7 left geofence", creator.created[0].Message)
	assert.Equal(t, "user-1", creator.created[0].UserID)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, KindLeft, notifier.events[0].Kind)
	assert.Equal(t, "owner@example.com", notifier.events[0].RecipientEmail)
}

func TestEvaluateRepeatedOutsideIsIdempotent(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	notifier := &stubNotifier{}
	evaluator := newEvaluator(t, flags, creator, notifier)

	device := circleDevice(false)
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))

	// Only the first outside reading transitions; no duplicate alerts.
	assert.Equal(t, []bool{true}, flags.calls)
	assert.Len(t, creator.created, 1)
	assert.Len(t, notifier.events, 1)
}

func TestEvaluateReturnClearsFlag(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	notifier := &stubNotifier{}
	evaluator := newEvaluator(t, flags, creator, notifier)

	device := circleDevice(true)
	require.NoError(t, evaluator.Evaluate(context.Background(), device, insidePoint()))

	assert.False(t, device.GeofenceAlertActive)
	assert.Equal(t, []bool{false}, flags.calls)
	require.Len(t, creator.created, 1)
	assert.Equal(t, alerts.TypeGeofenceReturn, creator.created[0].Type)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, KindReturned, notifier.events[0].Kind)
}

func TestEvaluateInsideWithoutActiveFlagIsNoop(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	evaluator := newEvaluator(t, flags, creator, &stubNotifier{})

	device := circleDevice(false)
	require.NoError(t, evaluator.Evaluate(context.Background(), device, insidePoint()))

	assert.Empty(t, flags.calls)
	assert.Empty(t, creator.created)
}

func TestEvaluateFullCycle(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	notifier := &stubNotifier{}
	evaluator := newEvaluator(t, flags, creator, notifier)

	device := circleDevice(false)
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))
	require.NoError(t, evaluator.Evaluate(context.Background(), device, insidePoint()))
	require.NoError(t, evaluator.Evaluate(context.Background(), device, outsidePoint()))

	assert.Equal(t, []bool{true, false, true}, flags.calls)
	require.Len(t, creator.created, 3)
	assert.Equal(t, alerts.TypeGeofence, creator.created[0].Type)
	assert.Equal(t, alerts.TypeGeofenceReturn, creator.created[1].Type)
	assert.Equal(t, alerts.TypeGeofence, creator.created[2].Type)
}

func TestEvaluateFlagPersistFailureSkipsAlert(t *testing.T) {
	flags := &stubFlagWriter{err: errors.New("db down")}
	creator := &stubAlertCreator{}
	notifier := &stubNotifier{}
	evaluator := newEvaluator(t, flags, creator, notifier)

	device := circleDevice(false)
	err := evaluator.Evaluate(context.Background(), device, outsidePoint())

	require.Error(t, err)
	assert.False(t, device.GeofenceAlertActive)
	assert.Empty(t, creator.created)
	assert.Empty(t, notifier.events)
}

func TestEvaluatePolygonFence(t *testing.T) {
	flags := &stubFlagWriter{}
	creator := &stubAlertCreator{}
	evaluator := newEvaluator(t, flags, creator, &stubNotifier{})

	device := circleDevice(false)
	device.Geofence = &tracking.GeofenceShape{
		Kind: tracking.GeofencePolygon,
		Ring: []geo.Vertex{
			{Lon: 13.9, Lat: 49.9},
			{Lon: 14.1, Lat: 49.9},
			{Lon: 14.1, Lat: 50.1},
			{Lon: 13.9, Lat: 50.1},
		},
	}

	inside := tracking.Location{DeviceID: "dev-1", Lat: 50.0, Lon: 14.0}
	outside := tracking.Location{DeviceID: "dev-1", Lat: 50.2, Lon: 14.0}

	require.NoError(t, evaluator.Evaluate(context.Background(), device, inside))
	assert.Empty(t, creator.created)

	require.NoError(t, evaluator.Evaluate(context.Background(), device, outside))
	require.Len(t, creator.created, 1)
	assert.True(t, device.GeofenceAlertActive)
}
