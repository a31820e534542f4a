package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mqtt_bridge"

// connectionStates lists every label value of the connection state gauge.
var connectionStates = []string{"disconnected", "connecting", "connected", "reconnecting"}

// subscriptionStates lists every label value of the subscriptions gauge.
var subscriptionStates = []string{"pending", "active", "failed"}

// Metrics holds the Prometheus collectors exported by the bridge
type Metrics struct {
	connectionStatus prometheus.Gauge
	connectionState  *prometheus.GaugeVec
	reconnects       prometheus.Counter
	messagesTotal    *prometheus.CounterVec
	subscriptions    *prometheus.GaugeVec
	queriesTotal     *prometheus.CounterVec
	storeSize        prometheus.Gauge
	lastMessage      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil
// registry leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "Broker connection status (1 connected, 0 otherwise)",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current broker connection state",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Number of reconnect cycles after transport errors",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by outcome",
		}, []string{"status"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Registered subscriptions by state",
		}, []string{"state"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Latest-message queries by result",
		}, []string{"result"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_messages",
			Help:      "Messages currently retained in the store",
		}),
		lastMessage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_message_timestamp_seconds",
			Help:      "Unix time of the most recently received message",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.connectionStatus,
			m.connectionState,
			m.reconnects,
			m.messagesTotal,
			m.subscriptions,
			m.queriesTotal,
			m.storeSize,
			m.lastMessage,
		} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register metric: %w", err)
			}
		}
	}

	return m, nil
}

// SetConnectionStatus records whether the bridge has a live session.
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

// SetConnectionState marks state as the only active connection state.
func (m *Metrics) SetConnectionState(state string) {
	for _, s := range connectionStates {
		if s == state {
			m.connectionState.WithLabelValues(s).Set(1)
		} else {
			m.connectionState.WithLabelValues(s).Set(0)
		}
	}
}

func (m *Metrics) IncReconnects() {
	m.reconnects.Inc()
}

// IncMessagesTotal counts an inbound message; status is received or dropped.
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// IncQueriesTotal counts a query; result is hit or empty.
func (m *Metrics) IncQueriesTotal(result string) {
	m.queriesTotal.WithLabelValues(result).Inc()
}

// SetSubscriptions replaces the per-state subscription gauges.
func (m *Metrics) SetSubscriptions(counts map[string]int) {
	for _, s := range subscriptionStates {
		m.subscriptions.WithLabelValues(s).Set(float64(counts[s]))
	}
}

func (m *Metrics) SetStoreSize(n int) {
	m.storeSize.Set(float64(n))
}

func (m *Metrics) SetLastMessageTime(t time.Time) {
	m.lastMessage.Set(float64(t.UnixNano()) / 1e9)
}

// Source provides the values sampled by MetricsCollector.
type Source interface {
	StoreSize() int
	SubscriptionCounts() map[string]int
}

// MetricsCollector periodically samples gauges that are cheaper to poll than
// to update on every change.
type MetricsCollector struct {
	metrics  *Metrics
	source   Source
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewMetricsCollector creates a collector that samples source every interval.
func NewMetricsCollector(m *Metrics, source Source, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling.
func (c *MetricsCollector) Start() {
	c.collect()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts sampling and waits for the loop to exit.
func (c *MetricsCollector) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *MetricsCollector) collect() {
	c.metrics.SetStoreSize(c.source.StoreSize())
	c.metrics.SetSubscriptions(c.source.SubscriptionCounts())
}
