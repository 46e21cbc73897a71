package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use SettingsSubscriber and Publisher respectively
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *zap.Logger

	mu        sync.Mutex
	onConnect []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration // How long NewClient waits for the first connection
}

// NewClient creates the MQTT client and starts connecting. A broker that is
// not reachable within ConnectTimeout is not an error: paho keeps retrying
// in the background and IsConnected reports the link state meanwhile.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{config: config, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(c.messagePubHandler)
	opts.SetOnConnectHandler(c.connectHandler)
	opts.SetConnectionLostHandler(c.connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		logger.Warn("mqtt broker not reachable yet, retrying in background",
			zap.String("broker", config.Broker),
			zap.Duration("timeout", config.ConnectTimeout))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return c, nil
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by SettingsSubscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// OnConnect registers fn to run after every (re)connection.
// Subscriptions are re-established this way.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()

	if c.client.IsConnected() {
		fn()
	}
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("mqtt client disconnected")
}

// Connection event handlers
func (c *Client) messagePubHandler(_ mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("mqtt message on unrouted topic", zap.String("topic", msg.Topic()))
}

func (c *Client) connectHandler(_ mqtt.Client) {
	c.logger.Info("mqtt connection established", zap.String("broker", c.config.Broker))

	c.mu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range hooks {
		go fn()
	}
}

func (c *Client) connectLostHandler(_ mqtt.Client, err error) {
	c.logger.Warn("mqtt connection lost", zap.Error(err))
}
