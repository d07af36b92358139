package notify

import (
	"context"

	alertapp "geotrack-cloud/internal/alerts/application"
)

// MultiNotifier dispatches notification events to multiple notifiers.
type MultiNotifier struct {
	notifiers []alertapp.Notifier
}

// NewMultiNotifier builds a fan-out notifier, skipping nil entries.
func NewMultiNotifier(notifiers ...alertapp.Notifier) *MultiNotifier {
	filtered := make([]alertapp.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify forwards the event to every notifier.
func (m *MultiNotifier) Notify(ctx context.Context, event alertapp.NotificationEvent) {
	if m == nil {
		return
	}
	for _, n := range m.notifiers {
		n.Notify(ctx, event)
	}
}
