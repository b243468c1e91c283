package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

const componentMQTT = "mqtt"

// ErrNotConnected is returned by Publish before Connect succeeded or while
// paho is reconnecting.
var ErrNotConnected = errors.New(errors.NewStd("not connected to MQTT broker")).
	Component(componentMQTT).
	Category(errors.CategoryMQTTConnection).
	Build()

// Client publishes tire messages to one topic.
type Client struct {
	config         Config
	internalClient mqtt.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
}

// NewClient validates cfg and returns a disconnected client.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (*Client, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Host == "" {
		return nil, errors.Newf("invalid broker URL %q", cfg.Broker).
			Component(componentMQTT).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Topic == "" {
		return nil, errors.Newf("mqtt topic is empty").
			Component(componentMQTT).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Client{config: cfg, metrics: m}, nil
}

// Name implements publish.Named
func (c *Client) Name() string { return "mqtt" }

// Connect resolves the broker host and connects. Once connected paho keeps
// reconnecting in the background until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnectionOpen() {
		return nil
	}

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), c.config.Broker)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectInterval)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := wait(ctx, token, c.config.ConnectTimeout); err != nil {
		client.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.IncrementErrors()
		return connectionError(err, c.config.Broker)
	}

	c.internalClient = client
	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish implements publish.Publisher. The message is sent as JSON.
func (c *Client) Publish(ctx context.Context, msg *snapshot.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return c.PublishRaw(ctx, c.config.Topic, payload)
}

// PublishRaw sends payload to topic with the configured QoS and retain flag.
func (c *Client) PublishRaw(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	client := c.internalClient
	c.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	token := client.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if err := wait(ctx, token, c.config.PublishTimeout); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(fmt.Errorf("publish to %s: %w", topic, err)).
			Component(componentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObserveMessageSize(float64(len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnectionOpen()
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient == nil {
		return
	}
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.internalClient = nil
	c.metrics.UpdateConnectionStatus(false)
}

func (c *Client) onConnect(mqtt.Client) {
	getLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.UpdateConnectionStatus(true)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	getLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
}

func (c *Client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	c.metrics.IncrementReconnectAttempts()
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.NewStd("timed out waiting for broker")
	}
}

func connectionError(err error, broker string) error {
	host := broker
	if u, parseErr := url.Parse(broker); parseErr == nil {
		host = u.Host // drops credentials
	}
	category := errors.CategoryMQTTConnection
	if errors.Is(err, context.Canceled) {
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component(componentMQTT).
		Category(category).
		Context("broker", host).
		Build()
}
