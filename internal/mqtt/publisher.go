package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher uplinks report batches to the broker
type Publisher struct {
	client  mqtt.Client
	topic   string // e.g., "devices/{device_id}/barks"
	timeout time.Duration
	logger  *zap.Logger
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	BarksTopic string        // e.g., "devices/{device_id}/barks"
	Timeout    time.Duration // Longest wait for the broker acknowledgement
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(client mqtt.Client, config PublisherConfig, logger *zap.Logger) *Publisher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:  client,
		topic:   config.BarksTopic,
		timeout: config.Timeout,
		logger:  logger,
	}
}

// Name identifies the uplink in logs
func (p *Publisher) Name() string {
	return "mqtt"
}

// SendBatch publishes the batch as JSON with QoS 1
func (p *Publisher) SendBatch(ctx context.Context, batch models.ReportBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal report batch: %w", err)
	}

	// Replace {device_id} placeholder with actual device ID
	topic := formatTopic(p.topic, batch.DeviceID)

	token := p.client.Publish(topic, 1, false, payload)
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish report batch: %w", err)
	}

	p.logger.Debug("published report batch",
		zap.String("batch_id", batch.ID),
		zap.Int("count", batch.Count),
		zap.String("topic", topic))
	return nil
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
