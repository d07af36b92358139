// Package notify delivers geofence alert notifications. Delivery is
// fire-and-forget by contract: enqueue and send failures are counted
// and logged, never returned to the ingest path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	alertapp "geotrack-cloud/internal/alerts/application"
	"geotrack-cloud/internal/observability/metrics"
)

// QueueNotifier renders the notification message and hands it to the
// Redis queue for asynchronous delivery.
type QueueNotifier struct {
	queue    *Queue
	template *Template
	logger   *zap.Logger
	clock    alertapp.Clock
}

// NotifierOption configures the notifier.
type NotifierOption func(*QueueNotifier)

// WithNotifierClock overrides the default clock.
func WithNotifierClock(clock alertapp.Clock) NotifierOption {
	return func(n *QueueNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewQueueNotifier constructs a notifier.
func NewQueueNotifier(queue *Queue, template *Template, logger *zap.Logger, opts ...NotifierOption) (*QueueNotifier, error) {
	if queue == nil {
		return nil, errors.New("notify: nil queue")
	}
	if template == nil {
		return nil, errors.New("notify: nil template")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := &QueueNotifier{
		queue:    queue,
		template: template,
		logger:   logger,
		clock:    wallClock{},
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Notify renders and enqueues one notification. Failures are logged
// and swallowed.
func (n *QueueNotifier) Notify(ctx context.Context, event alertapp.NotificationEvent) {
	if n == nil || n.queue == nil {
		return
	}
	if event.RecipientEmail == "" {
		n.logger.Debug("notification skipped, no recipient",
			zap.String("device_id", event.Device.DeviceID),
			zap.String("kind", event.Kind),
		)
		return
	}
	message, err := n.template.Render(event.Kind, TemplateData{
		Device: event.Device.DeviceID,
		Lat:    fmt.Sprintf("%.6f", event.Location.Lat),
		Lon:    fmt.Sprintf("%.6f", event.Location.Lon),
		Time:   event.Location.Timestamp.UTC().Format(time.RFC3339),
		Kind:   event.Kind,
	})
	if err != nil {
		metrics.IncNotification(event.Kind, "error")
		n.logger.Error("notification render failed",
			zap.String("device_id", event.Device.DeviceID),
			zap.Error(err),
		)
		return
	}

	job := Job{
		Kind:           event.Kind,
		RecipientEmail: event.RecipientEmail,
		DeviceID:       event.Device.DeviceID,
		Message:        message,
		EnqueuedAt:     n.clock.Now(),
	}
	if err := n.queue.Enqueue(ctx, job); err != nil {
		metrics.IncNotification(event.Kind, "error")
		n.logger.Error("notification enqueue failed",
			zap.String("device_id", event.Device.DeviceID),
			zap.Error(err),
		)
		return
	}
	metrics.IncNotification(event.Kind, "queued")
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

var _ alertapp.Notifier = (*QueueNotifier)(nil)
