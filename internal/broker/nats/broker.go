// Package nats implements broker.Transport for NATS servers. MQTT topic
// filters are mapped onto NATS subjects.
package nats

import (
	"time"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/logger"
)

const defaultRequestTimeout = 10 * time.Second

// Transport dials NATS connections with client-side reconnects disabled;
// the broker connection manager owns the retry loop.
type Transport struct {
	config config.BrokerConfig
	logger *logger.Logger
}

// NewTransport creates a transport for a nats:// address
func NewTransport(cfg config.BrokerConfig, log *logger.Logger) *Transport {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultRequestTimeout
	}

	return &Transport{
		config: cfg,
		logger: log,
	}
}

// Address implements broker.Transport
func (t *Transport) Address() string {
	return t.config.Address
}
