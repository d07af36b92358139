package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "geotrack-cloud/internal/alerts/domain"
	"geotrack-cloud/internal/observability/metrics"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// Notification kinds emitted by the geofence state machine.
const (
	KindLeft     = "left"
	KindReturned = "returned"
)

// NotificationEvent describes one geofence transition for delivery.
type NotificationEvent struct {
	Kind           string            `json:"kind"`
	RecipientEmail string            `json:"recipient_email,omitempty"`
	Device         tracking.Device   `json:"device"`
	Location       tracking.Location `json:"location"`
}

// Notifier delivers geofence notifications. Implementations are
// fire-and-forget: failures are logged by the implementation and never
// propagate to the caller.
type Notifier interface {
	Notify(ctx context.Context, event NotificationEvent)
}

// DeviceFlagWriter persists the geofence hysteresis flag.
type DeviceFlagWriter interface {
	SetGeofenceAlertActive(ctx context.Context, id string, active bool) error
}

// AlertCreator appends alert records.
type AlertCreator interface {
	Create(ctx context.Context, alert *alerts.Alert) error
}

// EmailResolver provides the notification recipient for a device when
// available.
type EmailResolver func(ctx context.Context, device *tracking.Device) string

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// GeofenceEvaluator evaluates one location against a device's geofence
// and the persisted alert flag. The flag is the hysteresis that keeps
// repeated readings of an unchanged state from producing alert storms:
// each call yields at most one transition, and consecutive identical
// states are no-ops.
type GeofenceEvaluator struct {
	devices  DeviceFlagWriter
	alerts   AlertCreator
	notifier Notifier
	email    EmailResolver
	logger   *zap.Logger
	clock    Clock
	newID    func() string
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*GeofenceEvaluator)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) EvaluatorOption {
	return func(e *GeofenceEvaluator) {
		e.notifier = notifier
	}
}

// WithEmailResolver injects a recipient resolver.
func WithEmailResolver(resolver EmailResolver) EvaluatorOption {
	return func(e *GeofenceEvaluator) {
		if resolver != nil {
			e.email = resolver
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *GeofenceEvaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDFactory overrides alert id generation.
func WithIDFactory(factory func() string) EvaluatorOption {
	return func(e *GeofenceEvaluator) {
		if factory != nil {
			e.newID = factory
		}
	}
}

// NewGeofenceEvaluator constructs an evaluator.
func NewGeofenceEvaluator(devices DeviceFlagWriter, alertsRepo AlertCreator, logger *zap.Logger, opts ...EvaluatorOption) (*GeofenceEvaluator, error) {
	if devices == nil || alertsRepo == nil {
		return nil, errors.New("geofence: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	evaluator := &GeofenceEvaluator{
		devices: devices,
		alerts:  alertsRepo,
		logger:  logger,
		clock:   systemClock{},
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// Evaluate runs the state machine for one location. A device without a
// geofence is a no-op. On a transition the flag is persisted first,
// then the alert is appended and the notifier invoked; notifier
// failures never surface here. Idempotent for repeated readings of the
// same state.
func (e *GeofenceEvaluator) Evaluate(ctx context.Context, device *tracking.Device, location tracking.Location) error {
	if e == nil {
		return errors.New("geofence: nil evaluator")
	}
	if device == nil {
		return errors.New("geofence: nil device")
	}
	if device.Geofence == nil {
		return nil
	}

	inside := device.Geofence.Contains(location.Lat, location.Lon)
	switch {
	case !inside && !device.GeofenceAlertActive:
		return e.transition(ctx, device, location, true, KindLeft, alerts.TypeGeofence,
			fmt.Sprintf("%s left geofence", device.DeviceID))
	case inside && device.GeofenceAlertActive:
		return e.transition(ctx, device, location, false, KindReturned, alerts.TypeGeofenceReturn,
			fmt.Sprintf("%s returned to geofence", device.DeviceID))
	default:
		return nil
	}
}

func (e *GeofenceEvaluator) transition(ctx context.Context, device *tracking.Device, location tracking.Location, active bool, kind, alertType, message string) error {
	if err := e.devices.SetGeofenceAlertActive(ctx, device.ID, active); err != nil {
		return fmt.Errorf("geofence: persist flag: %w", err)
	}
	device.GeofenceAlertActive = active
	metrics.IncGeofenceTransition(kind)

	alert := &alerts.Alert{
		ID:        e.newID(),
		DeviceID:  device.ID,
		UserID:    device.UserID,
		Type:      alertType,
		Message:   message,
		CreatedAt: e.clock.Now(),
	}
	if err := e.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("geofence: create alert: %w", err)
	}

	if e.notifier != nil {
		event := NotificationEvent{
			Kind:     kind,
			Device:   *device,
			Location: location,
		}
		if e.email != nil {
			event.RecipientEmail = e.email(ctx, device)
		}
		e.notifier.Notify(ctx, event)
	}

	e.logger.Info("geofence transition",
		zap.String("device_id", device.DeviceID),
		zap.String("kind", kind),
		zap.Bool("alert_active", active),
	)
	return nil
}
