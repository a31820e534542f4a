package stats

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// StatsCollector manages bridge-wide counters served on the stats endpoint
type StatsCollector struct {
	StartTime            time.Time
	MessagesReceived     uint64
	MessagesDropped      uint64
	QueriesServed        uint64
	EmptyQueries         uint64
	Reconnects           uint64
	SubscriptionFailures uint64

	mu              sync.RWMutex
	connectionState string
	lastMessage     time.Time
	lastError       string
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime:       time.Now(),
		connectionState: "disconnected",
	}
}

// RecordMessage counts a message appended to the store
func (s *StatsCollector) RecordMessage(at time.Time) {
	atomic.AddUint64(&s.MessagesReceived, 1)
	s.mu.Lock()
	s.lastMessage = at
	s.mu.Unlock()
}

// RecordDropped counts a message delivered for a topic no longer subscribed
func (s *StatsCollector) RecordDropped() {
	atomic.AddUint64(&s.MessagesDropped, 1)
}

// RecordQuery counts a latest-message query and whether it came back empty
func (s *StatsCollector) RecordQuery(empty bool) {
	atomic.AddUint64(&s.QueriesServed, 1)
	if empty {
		atomic.AddUint64(&s.EmptyQueries, 1)
	}
}

// RecordReconnect counts a reconnect cycle
func (s *StatsCollector) RecordReconnect() {
	atomic.AddUint64(&s.Reconnects, 1)
}

// RecordSubscriptionFailure counts a subscription rejected by the broker
func (s *StatsCollector) RecordSubscriptionFailure() {
	atomic.AddUint64(&s.SubscriptionFailures, 1)
}

// SetConnectionState records the current connection state and its error, if any
func (s *StatsCollector) SetConnectionState(state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectionState = state
	if err != nil {
		s.lastError = err.Error()
	}
}

// ConnectionState returns the last recorded connection state
func (s *StatsCollector) ConnectionState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionState
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	s.mu.RLock()
	state := s.connectionState
	lastMessage := s.lastMessage
	lastError := s.lastError
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"uptime":                time.Since(s.StartTime).String(),
		"connection_state":      state,
		"messages_received":     atomic.LoadUint64(&s.MessagesReceived),
		"messages_dropped":      atomic.LoadUint64(&s.MessagesDropped),
		"queries_served":        atomic.LoadUint64(&s.QueriesServed),
		"empty_queries":         atomic.LoadUint64(&s.EmptyQueries),
		"reconnects":            atomic.LoadUint64(&s.Reconnects),
		"subscription_failures": atomic.LoadUint64(&s.SubscriptionFailures),
		"message_rate":          s.CalculateRate(),
	}
	if !lastMessage.IsZero() {
		stats["last_message"] = lastMessage
	}
	if lastError != "" {
		stats["last_error"] = lastError
	}
	return stats
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates the inbound message rate per second since start
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesReceived)) / uptime
}
