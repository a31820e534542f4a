package bridge

import (
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/broker/mqtt"
	"mqtt-query-bridge/internal/broker/nats"
	"mqtt-query-bridge/internal/logger"
)

// NewTransport picks the transport implementation from the broker address scheme.
func NewTransport(cfg config.BrokerConfig, log *logger.Logger) (broker.Transport, error) {
	kind, err := config.TransportKind(cfg.Address)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "mqtt":
		return mqtt.NewTransport(cfg, log), nil
	case "nats":
		return nats.NewTransport(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", kind)
	}
}

// ReconnectPolicy returns the reconnect backoff for cfg: a constant delay, or
// an exponential one capped at ReconnectMaxDelay when that is larger.
func ReconnectPolicy(cfg config.BrokerConfig) backoff.BackOff {
	if cfg.ReconnectMaxDelay <= cfg.ReconnectDelay {
		return backoff.NewConstantBackOff(cfg.ReconnectDelay)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectDelay
	bo.MaxInterval = cfg.ReconnectMaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}
