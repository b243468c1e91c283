// Package mqtt publishes tire messages to an MQTT broker.
package mqtt

import (
	"time"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/logger"
)

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // topic every message is published to
	Retain   bool   // true to retain messages at the broker
	QoS      byte
	// Reconnect is handled by paho; MaxReconnectInterval caps its backoff
	MaxReconnectInterval time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:             "rf2bridge",
		Topic:                "rf2bridge/tires",
		MaxReconnectInterval: time.Minute,
		ConnectTimeout:       30 * time.Second,
		PublishTimeout:       2 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
	}
}

// ConfigFromSettings overlays validated settings on DefaultConfig.
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	cfg.QoS = byte(s.QoS)
	return cfg
}

func getLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
