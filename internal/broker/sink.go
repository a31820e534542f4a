package broker

import (
	"time"

	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/metrics"
	"mqtt-query-bridge/internal/stats"
	"mqtt-query-bridge/internal/store"
)

// TopicFilter decides whether a delivered topic is still wanted.
type TopicFilter interface {
	Accepts(topic string) bool
}

// Sink receives delivered messages and appends them to the store.
type Sink struct {
	store   *store.Store
	filter  TopicFilter
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
}

// NewSink creates a sink. filter, metrics and stats may be nil.
func NewSink(st *store.Store, filter TopicFilter, log *logger.Logger, m *metrics.Metrics, s *stats.StatsCollector) *Sink {
	if log == nil {
		log = logger.Nop()
	}
	return &Sink{
		store:   st,
		filter:  filter,
		logger:  log,
		metrics: m,
		stats:   s,
	}
}

// OnMessage is the MessageHandler for the connection manager. It never
// inspects the payload.
func (s *Sink) OnMessage(topic string, payload []byte) {
	if s.filter != nil && !s.filter.Accepts(topic) {
		s.logger.Debug("dropping message for unsubscribed topic", "topic", topic)
		if s.metrics != nil {
			s.metrics.IncMessagesTotal("dropped")
		}
		if s.stats != nil {
			s.stats.RecordDropped()
		}
		return
	}

	// Transports may reuse the delivery buffer
	data := make([]byte, len(payload))
	copy(data, payload)

	now := time.Now()
	s.store.Append(store.Message{
		Topic:      topic,
		Payload:    data,
		ReceivedAt: now,
	})

	if s.metrics != nil {
		s.metrics.IncMessagesTotal("received")
		s.metrics.SetLastMessageTime(now)
	}
	if s.stats != nil {
		s.stats.RecordMessage(now)
	}

	s.logger.Debug("stored message",
		"topic", topic,
		"size", len(data))
}
