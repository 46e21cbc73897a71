package main

import (
	"context"
	"fmt"

	"github.com/hslarson/Dog-Bark-Detector/internal/cloud"
	"github.com/hslarson/Dog-Bark-Detector/internal/database"
	"github.com/hslarson/Dog-Bark-Detector/internal/mqtt"
	"github.com/hslarson/Dog-Bark-Detector/internal/services"
	"github.com/hslarson/Dog-Bark-Detector/internal/settings"
	"github.com/hslarson/Dog-Bark-Detector/pkg/config"
	"go.uber.org/zap"
)

// network holds every optional remote endpoint
type network struct {
	logger *zap.Logger

	mqttClient *mqtt.Client
	publisher  *mqtt.Publisher
	subscriber *mqtt.SettingsSubscriber
	channel    *cloud.ChannelClient
	db         *database.ClickHouseDB
	pushover   *cloud.PushoverNotifier
}

func openNetwork(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*network, error) {
	n := &network{logger: logger}

	if cfg.MQTTBroker != "" {
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:         cfg.MQTTBroker,
			ClientID:       cfg.MQTTClientID,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			ConnectTimeout: cfg.WiFiTimeout,
		}, logger.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		n.mqttClient = client
		n.publisher = mqtt.NewPublisher(client.GetNativeClient(), mqtt.PublisherConfig{
			BarksTopic: cfg.MQTTTopicBarks,
			Timeout:    cfg.RequestTimeout,
		}, logger.Named("mqtt"))

		if cfg.SettingsSource == config.SettingsMQTT {
			n.subscriber = mqtt.NewSettingsSubscriber(client.GetNativeClient(), cfg.MQTTTopicSettings, logger.Named("mqtt"))
			// Subscriptions do not survive a clean reconnect
			client.OnConnect(func() {
				if err := n.subscriber.Subscribe(); err != nil {
					logger.Warn("failed to subscribe to settings topic", zap.Error(err))
				}
			})
		}
	}

	if cfg.WriteAPIKey != "" || cfg.SettingsSource == config.SettingsChannel {
		n.channel = cloud.NewChannelClient(cloud.ChannelConfig{
			BaseURL:         cfg.ChannelURL,
			WriteKey:        cfg.WriteAPIKey,
			ReadKey:         cfg.ReadAPIKey,
			SettingsChannel: cfg.SettingsChannel,
			Timeout:         cfg.RequestTimeout,
		}, logger.Named("channel"))
	}

	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(ctx, database.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, logger.Named("clickhouse"))
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
		}
		n.db = db
	}

	if cfg.NotificationsEnabled() {
		n.pushover = cloud.NewPushoverNotifier(cloud.PushoverConfig{
			BaseURL:   cfg.PushoverURL,
			AppToken:  cfg.PushoverAppToken,
			UserToken: cfg.PushoverUserToken,
			Title:     fmt.Sprintf("Bark detected (%s)", cfg.DeviceID),
			Timeout:   cfg.RequestTimeout,
		}, logger.Named("pushover"))
	}

	return n, nil
}

// uplink combines the configured report destinations, nil if there are none
func (n *network) uplink() services.Uplink {
	var uplinks []services.Uplink
	if n.channel != nil && n.channel.CanWrite() {
		uplinks = append(uplinks, n.channel)
	}
	if n.publisher != nil {
		uplinks = append(uplinks, n.publisher)
	}
	if n.db != nil {
		uplinks = append(uplinks, n.db)
	}

	switch len(uplinks) {
	case 0:
		return nil
	case 1:
		return uplinks[0]
	default:
		return services.NewMultiUplink(uplinks...)
	}
}

func (n *network) notifier() services.Notifier {
	if n.pushover == nil {
		return nil
	}
	return n.pushover
}

// link follows the broker connection when there is one
func (n *network) link() services.Link {
	if n.mqttClient == nil {
		return nil
	}
	return n.mqttClient
}

func (n *network) settingsSource(cfg *config.Config) services.SettingsSource {
	switch cfg.SettingsSource {
	case config.SettingsChannel:
		if n.channel != nil {
			return n.channel
		}
	case config.SettingsMQTT:
		if n.subscriber != nil {
			return n.subscriber
		}
	case config.SettingsFile:
		return settings.NewFileSource(cfg.SettingsFile, n.logger.Named("settings"))
	}
	return nil
}

func (n *network) Close() {
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn("failed to close ClickHouse", zap.Error(err))
		}
	}
	if n.mqttClient != nil {
		n.mqttClient.Close()
	}
}
