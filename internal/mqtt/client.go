package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/logger"
	"github.com/civicwatch/alertwatch/internal/observability/metrics"
)

// client implements the Client interface on top of the paho client.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client. metrics may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics, log logger.Logger) (Client, error) {
	if cfg.Broker == "" {
		return nil, mqttError(errors.NewStd("broker URL is required"), "new-client", errors.CategoryConfiguration)
	}
	if cfg.QoS > 2 {
		return nil, mqttError(fmt.Errorf("invalid QoS %d", cfg.QoS), "new-client", errors.CategoryConfiguration)
	}
	defaults := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &client{config: cfg, metrics: m, log: log.Module("mqtt")}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return mqttError(fmt.Errorf("connection attempt too recent, last attempt was %v ago", since), "connect", errors.CategoryLimit)
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return mqttError(fmt.Errorf("invalid broker URL: %w", err), "connect", errors.CategoryConfiguration)
	}

	host := u.Hostname()
	if host == "" {
		return mqttError(fmt.Errorf("broker URL %q has no host", c.config.Broker), "connect", errors.CategoryConfiguration)
	}
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), "connect", errors.CategoryNetwork)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.incrementErrors()
		return mqttError(fmt.Errorf("connection error: %w", err), "connect", errors.CategoryNetwork)
	}

	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	return nil
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected() {
		return mqttError(errors.NewStd("not connected to MQTT broker"), "publish", errors.CategoryNetwork)
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		c.incrementErrors()
		return mqttError(fmt.Errorf("publish to %s failed: %w", topic, err), "publish", errors.CategoryNetwork)
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObservePublish(len(payload), time.Since(start))
	}
	c.log.Debug("published message", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// waitToken waits for token to complete, the timeout to pass or ctx to end.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *client) isConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker. It is safe to call
// on a client that never connected.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient == nil {
		return
	}
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.internalClient = nil
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) onConnect(mqtt.Client) {
	c.log.Info("MQTT connection established", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("MQTT connection lost", logger.String("broker", c.config.Broker), logger.Error(err))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
	c.incrementErrors()
}

func (c *client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	if c.metrics != nil {
		c.metrics.IncrementReconnectAttempts()
	}
}

func (c *client) incrementErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

func mqttError(err error, op string, category errors.ErrorCategory) error {
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("operation", op).
		Build()
}
