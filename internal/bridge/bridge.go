// Package bridge wires the broker subscriber, the message store and the
// query service into one unit with a single lifecycle.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/metrics"
	"mqtt-query-bridge/internal/query"
	"mqtt-query-bridge/internal/stats"
	"mqtt-query-bridge/internal/store"
)

// Bridge owns one broker connection and the messages received on it.
// Several bridges can run in the same process.
type Bridge struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	conn     *broker.ConnectionManager
	registry *broker.Registry
	sink     *broker.Sink
	store    *store.Store
	query    *query.Service

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a bridge over transport. metricsService may be nil; stats
// are always collected.
func New(cfg *config.Config, transport broker.Transport, log *logger.Logger, metricsService *metrics.Metrics, statsCollector *stats.StatsCollector) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	if statsCollector == nil {
		statsCollector = stats.NewStatsCollector()
	}

	b := &Bridge{
		config:  cfg,
		logger:  log,
		metrics: metricsService,
		stats:   statsCollector,
		store:   store.New(cfg.Store.MaxMessages),
	}

	b.conn = broker.NewConnectionManager(transport, broker.Options{
		ClientIDPrefix: cfg.Broker.ClientIDPrefix,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		ReconnectDelay: cfg.Broker.ReconnectDelay,
		BackOff:        ReconnectPolicy(cfg.Broker),
	}, log)
	b.registry = broker.NewRegistry(b.conn, log)
	b.sink = broker.NewSink(b.store, b.registry, log, metricsService, statsCollector)
	b.query = query.NewService(b.store, log, metricsService, statsCollector)

	b.conn.SetMessageHandler(b.sink.OnMessage)
	b.conn.OnStateChange(b.recordStateChange)
	b.registry.OnSubscriptionChange(b.recordSubscriptionChange)

	return b, nil
}

// Start registers the configured topics and starts connecting. It returns
// without waiting for the broker.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bridge is closed")
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}

	for _, topic := range b.config.Broker.Topics {
		if err := b.registry.Subscribe(topic); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}
	}
	b.started = true
	b.mu.Unlock()

	b.logger.Info("starting bridge",
		"broker", b.config.Broker.Address,
		"topics", b.config.Broker.Topics)

	return b.conn.Connect(ctx)
}

// Close disconnects from the broker. Stored messages stay queryable.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("shutting down bridge")
	b.conn.Disconnect()
}

// Subscribe adds a topic filter at runtime
func (b *Bridge) Subscribe(topic string) error {
	return b.registry.Subscribe(topic)
}

// Unsubscribe removes a topic filter at runtime
func (b *Bridge) Unsubscribe(topic string) error {
	return b.registry.Unsubscribe(topic)
}

// LatestMessage returns the most recent message received on any topic
func (b *Bridge) LatestMessage() (store.Message, bool) {
	return b.query.LatestMessage()
}

// Query returns the query service
func (b *Bridge) Query() *query.Service {
	return b.query
}

// Connection returns the connection manager
func (b *Bridge) Connection() *broker.ConnectionManager {
	return b.conn
}

// Registry returns the subscription registry
func (b *Bridge) Registry() *broker.Registry {
	return b.registry
}

// Stats returns the stats collector
func (b *Bridge) Stats() *stats.StatsCollector {
	return b.stats
}

// IsConnected reports whether a broker session is live
func (b *Bridge) IsConnected() bool {
	return b.conn.IsConnected()
}

// StoreSize implements metrics.Source
func (b *Bridge) StoreSize() int {
	return b.store.Len()
}

// SubscriptionCounts implements metrics.Source
func (b *Bridge) SubscriptionCounts() map[string]int {
	return b.registry.Counts()
}

func (b *Bridge) recordStateChange(change broker.StateChange) {
	b.stats.SetConnectionState(string(change.To), change.Err)

	if change.To == broker.StateReconnecting {
		b.stats.RecordReconnect()
	}

	if b.metrics != nil {
		b.metrics.SetConnectionState(string(change.To))
		b.metrics.SetConnectionStatus(change.To == broker.StateConnected)
		if change.To == broker.StateReconnecting {
			b.metrics.IncReconnects()
		}
	}
}

func (b *Bridge) recordSubscriptionChange(sub broker.Subscription) {
	if sub.State == broker.SubscriptionFailed {
		b.stats.RecordSubscriptionFailure()
		b.logger.Error("subscription failed",
			"topic", sub.Topic,
			"error", sub.LastError)
	}

	if b.metrics != nil {
		b.metrics.SetSubscriptions(b.registry.Counts())
	}
}
