// Package query answers "what is the latest message" from the store.
package query

import (
	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/metrics"
	"mqtt-query-bridge/internal/stats"
	"mqtt-query-bridge/internal/store"
)

// NoMessages is the rendering of an empty result.
const NoMessages = "no messages"

// Service is a read-through view of the store. Queries never remove messages.
type Service struct {
	store   *store.Store
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
}

// NewService creates a query service. metrics and stats may be nil.
func NewService(st *store.Store, log *logger.Logger, m *metrics.Metrics, s *stats.StatsCollector) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:   st,
		logger:  log,
		metrics: m,
		stats:   s,
	}
}

// LatestMessage returns the most recently received message on any topic.
// The boolean is false when nothing has been received yet.
func (s *Service) LatestMessage() (store.Message, bool) {
	msg, ok := s.store.Latest()
	s.record(ok)
	return msg, ok
}

// LatestMessageFor returns the most recent message received on topic.
func (s *Service) LatestMessageFor(topic string) (store.Message, bool) {
	msg, ok := s.store.LatestFor(topic)
	s.record(ok)
	return msg, ok
}

// Render returns the payload bytes, or NoMessages when ok is false.
func Render(msg store.Message, ok bool) []byte {
	if !ok {
		return []byte(NoMessages)
	}
	return msg.Payload
}

func (s *Service) record(ok bool) {
	result := "hit"
	if !ok {
		result = "empty"
	}

	if s.metrics != nil {
		s.metrics.IncQueriesTotal(result)
	}
	if s.stats != nil {
		s.stats.RecordQuery(!ok)
	}

	s.logger.Debug("served query", "result", result)
}
