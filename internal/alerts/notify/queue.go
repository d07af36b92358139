package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Dequeue when no job arrived within the
// wait window.
var ErrQueueEmpty = errors.New("notify: queue is empty")

const defaultQueueKey = "notifications:queue"

// Job is one queued notification delivery.
type Job struct {
	Kind           string    `json:"kind"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	DeviceID       string    `json:"device_id"`
	Message        string    `json:"message"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Queue is a Redis-backed notification job queue. Producers push from
// the ingest path; a delivery worker pops on its own schedule so slow
// delivery never holds up ingestion.
type Queue struct {
	client *redis.Client
	key    string
}

// QueueOption configures the queue.
type QueueOption func(*Queue)

// WithQueueKey overrides the default Redis list key.
func WithQueueKey(key string) QueueOption {
	return func(q *Queue) {
		if key != "" {
			q.key = key
		}
	}
}

// NewQueue constructs a queue.
func NewQueue(client *redis.Client, opts ...QueueOption) *Queue {
	queue := &Queue{client: client, key: defaultQueueKey}
	for _, opt := range opts {
		opt(queue)
	}
	return queue
}

// Enqueue pushes a delivery job.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if q == nil || q.client == nil {
		return errors.New("notify: nil queue")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks up to timeout for the next job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	var job Job
	if q == nil || q.client == nil {
		return job, errors.New("notify: nil queue")
	}
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return job, ErrQueueEmpty
		}
		return job, err
	}
	if len(res) < 2 {
		return job, ErrQueueEmpty
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, err
	}
	return job, nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	if q == nil || q.client == nil {
		return 0, errors.New("notify: nil queue")
	}
	return q.client.LLen(ctx, q.key).Result()
}
