package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"geotrack-cloud/internal/tracking/application"
	tracking "geotrack-cloud/internal/tracking/domain"
)

// Topic layout: geotrack/{device_id}/loc.
const (
	topicPrefix = "geotrack"
	topicSuffix = "loc"
	topicFilter = topicPrefix + "/+/" + topicSuffix
)

// Subscriber is the broker surface the consumer uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// DeviceResolver looks a device up by its human identifier.
type DeviceResolver interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*tracking.Device, error)
}

// Ingester persists a validated batch for a resolved device.
type Ingester interface {
	Ingest(ctx context.Context, device *tracking.Device, points []tracking.Point, opts application.IngestOptions) (*application.IngestResult, error)
}

// Consumer feeds broker messages into the ingest pipeline.
type Consumer struct {
	subscriber Subscriber
	devices    DeviceResolver
	ingester   Ingester
	logger     *zap.Logger
	timeout    time.Duration
}

// ConsumerOption customizes the consumer.
type ConsumerOption func(*Consumer)

// WithHandleTimeout bounds the per-message ingest time.
func WithHandleTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewConsumer constructs a consumer.
func NewConsumer(subscriber Subscriber, devices DeviceResolver, ingester Ingester, logger *zap.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if subscriber == nil {
		return nil, errors.New("mqtt: nil subscriber")
	}
	if devices == nil {
		return nil, errors.New("mqtt: nil device resolver")
	}
	if ingester == nil {
		return nil, errors.New("mqtt: nil ingester")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		subscriber: subscriber,
		devices:    devices,
		ingester:   ingester,
		logger:     logger,
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes and blocks until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(topicFilter, 1, c.HandleMessage); err != nil {
		return err
	}
	c.logger.Info("mqtt consumer started", zap.String("topic", topicFilter))

	<-ctx.Done()

	if err := c.subscriber.Unsubscribe(topicFilter); err != nil {
		c.logger.Error("mqtt unsubscribe failed", zap.Error(err))
	}
	c.logger.Info("mqtt consumer stopped")
	return nil
}

type locationMessage struct {
	ClientType  *string        `json:"client_type"`
	PowerStatus *string        `json:"power_status"`
	Points      []pointMessage `json:"points"`

	// Single-point form.
	pointMessage
}

type pointMessage struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Speed      *float64 `json:"speed"`
	Altitude   *float64 `json:"altitude"`
	Accuracy   *float64 `json:"accuracy"`
	Satellites *int     `json:"satellites"`
	TS         int64    `json:"ts"`
}

// HandleMessage ingests one broker message. The device identifier
// comes from the topic, not the payload.
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		return err
	}

	var msg locationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("mqtt: decode %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	device, err := c.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("mqtt: resolve %s: %w", deviceID, err)
	}

	result, err := c.ingester.Ingest(ctx, device, msg.toPoints(), application.IngestOptions{
		ClientType:  msg.ClientType,
		PowerStatus: msg.PowerStatus,
	})
	if err != nil {
		return fmt.Errorf("mqtt: ingest %s: %w", deviceID, err)
	}

	c.logger.Debug("mqtt batch ingested",
		zap.String("device_id", deviceID),
		zap.Int("inserted", result.InsertedCount),
	)
	return nil
}

func (m locationMessage) toPoints() []tracking.Point {
	payloads := m.Points
	if len(payloads) == 0 && (m.Lat != nil || m.Lon != nil) {
		payloads = []pointMessage{m.pointMessage}
	}

	points := make([]tracking.Point, 0, len(payloads))
	for _, p := range payloads {
		var ts time.Time
		if p.TS > 0 {
			if p.TS > 1_000_000_000_000 {
				ts = time.UnixMilli(p.TS).UTC()
			} else {
				ts = time.Unix(p.TS, 0).UTC()
			}
		}
		points = append(points, tracking.Point{
			Lat:        p.Lat,
			Lon:        p.Lon,
			Speed:      p.Speed,
			Altitude:   p.Altitude,
			Accuracy:   p.Accuracy,
			Satellites: p.Satellites,
			Timestamp:  ts,
		})
	}
	return points
}

func deviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != topicPrefix || parts[2] != topicSuffix || parts[1] == "" {
		return "", fmt.Errorf("mqtt: unexpected topic %q", topic)
	}
	return parts[1], nil
}
