package notify

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"geotrack-cloud/internal/observability/metrics"
)

const (
	defaultPollTimeout    = 5 * time.Second
	defaultRequestTimeout = 5 * time.Second
	defaultSendRate       = 5 // deliveries per second
)

// Sender drains the notification queue and posts each job to the mail
// gateway. Delivery failures are logged and dropped; the ingest path
// has already moved on.
type Sender struct {
	queue      *Queue
	client     *resty.Client
	gatewayURL string
	limiter    *rate.Limiter
	logger     *zap.Logger
	stop       chan struct{}
	done       chan struct{}
}

// SenderOption configures the sender.
type SenderOption func(*Sender)

// WithSendRate caps deliveries per second.
func WithSendRate(perSecond float64) SenderOption {
	return func(s *Sender) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRequestTimeout overrides the gateway request timeout.
func WithRequestTimeout(timeout time.Duration) SenderOption {
	return func(s *Sender) {
		if timeout > 0 {
			s.client.SetTimeout(timeout)
		}
	}
}

// NewSender constructs a sender.
func NewSender(queue *Queue, gatewayURL string, logger *zap.Logger, opts ...SenderOption) (*Sender, error) {
	if queue == nil {
		return nil, errors.New("notify: nil queue")
	}
	if gatewayURL == "" {
		return nil, errors.New("notify: empty gateway url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := &Sender{
		queue:      queue,
		client:     resty.New().SetTimeout(defaultRequestTimeout),
		gatewayURL: gatewayURL,
		limiter:    rate.NewLimiter(rate.Limit(defaultSendRate), 1),
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sender)
	}
	return sender, nil
}

// Start runs the delivery loop in the background.
func (s *Sender) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			job, err := s.queue.Dequeue(ctx, defaultPollTimeout)
			if err != nil {
				if errors.Is(err, ErrQueueEmpty) || errors.Is(err, context.Canceled) {
					continue
				}
				s.logger.Warn("notification dequeue failed", zap.Error(err))
				continue
			}
			s.deliver(ctx, job)
		}
	}()
}

// Stop signals the loop and waits for it to finish.
func (s *Sender) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sender) deliver(ctx context.Context, job Job) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(job).
		Post(s.gatewayURL)
	if err != nil {
		metrics.IncNotification(job.Kind, "error")
		s.logger.Error("notification delivery failed",
			zap.String("device_id", job.DeviceID),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		metrics.IncNotification(job.Kind, "error")
		s.logger.Error("notification delivery rejected",
			zap.String("device_id", job.DeviceID),
			zap.Int("status", resp.StatusCode()),
		)
		return
	}
	metrics.IncNotification(job.Kind, "sent")
	s.logger.Info("notification delivered",
		zap.String("device_id", job.DeviceID),
		zap.String("kind", job.Kind),
		zap.Duration("queue_latency", time.Since(job.EnqueuedAt)),
	)
}

// DeliverOnce drains at most one job synchronously; used by tests and
// manual flushes.
func (s *Sender) DeliverOnce(ctx context.Context, wait time.Duration) error {
	job, err := s.queue.Dequeue(ctx, wait)
	if err != nil {
		return err
	}
	s.deliver(ctx, job)
	return nil
}
