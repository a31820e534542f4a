// Package mqtt implements broker.Transport on top of the Eclipse Paho client.
package mqtt

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/logger"
)

const defaultSubscribeTimeout = 10 * time.Second

// Transport dials MQTT sessions. Each Dial builds a fresh client so that
// every attempt carries its own client identifier; the client's own
// reconnect logic is disabled.
type Transport struct {
	config    config.BrokerConfig
	logger    *logger.Logger
	newClient ClientFactory
}

// NewTransport creates a transport for the configured broker address
func NewTransport(cfg config.BrokerConfig, log *logger.Logger) *Transport {
	return NewTransportWithClient(cfg, log, mqtt.NewClient)
}

// NewTransportWithClient creates a transport with a custom client factory (for testing)
func NewTransportWithClient(cfg config.BrokerConfig, log *logger.Logger, factory ClientFactory) *Transport {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}

	return &Transport{
		config:    cfg,
		logger:    log,
		newClient: factory,
	}
}

// Address implements broker.Transport
func (t *Transport) Address() string {
	return t.config.Address
}
