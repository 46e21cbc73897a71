package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
)

// SettingsSubscriber receives remote threshold updates. The broker keeps
// the last update retained, so a fresh subscription always gets the
// current settings.
type SettingsSubscriber struct {
	client mqtt.Client
	topic  string // e.g., "devices/{device_id}/settings"
	logger *zap.Logger

	mu     sync.Mutex
	latest *models.ThresholdsUpdate
}

// NewSettingsSubscriber creates a subscriber for the settings topic
func NewSettingsSubscriber(client mqtt.Client, topic string, logger *zap.Logger) *SettingsSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsSubscriber{
		client: client,
		topic:  topic,
		logger: logger,
	}
}

// Subscribe subscribes to the settings topic
func (s *SettingsSubscriber) Subscribe() error {
	token := s.client.Subscribe(s.topic, 1, s.handleSettings)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to settings topic: %w", token.Error())
	}
	s.logger.Info("subscribed to settings topic", zap.String("topic", s.topic))
	return nil
}

// Fetch returns the newest update received since the last Fetch,
// or models.ErrNoSettings when nothing new arrived.
func (s *SettingsSubscriber) Fetch(_ context.Context) (models.ThresholdsUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return models.ThresholdsUpdate{}, models.ErrNoSettings
	}
	update := *s.latest
	s.latest = nil
	return update, nil
}

// handleSettings parses a settings message. Later messages replace
// earlier ones that have not been fetched yet.
func (s *SettingsSubscriber) handleSettings(_ mqtt.Client, msg mqtt.Message) {
	var update models.ThresholdsUpdate
	if err := json.Unmarshal(msg.Payload(), &update); err != nil {
		s.logger.Warn("error unmarshaling settings message",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}
	if update.Empty() {
		s.logger.Debug("ignoring empty settings message", zap.String("topic", msg.Topic()))
		return
	}
	update.ReceivedAt = time.Now()

	s.mu.Lock()
	s.latest = &update
	s.mu.Unlock()

	s.logger.Debug("received settings", zap.String("topic", msg.Topic()), zap.Bool("retained", msg.Retained()))
}
