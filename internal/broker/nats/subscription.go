package nats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/logger"
)

// session wraps a single NATS connection
type session struct {
	conn    *nats.Conn
	logger  *logger.Logger
	timeout time.Duration
	handler broker.MessageHandler

	mu   sync.Mutex
	subs map[string]*nats.Subscription

	closed    atomic.Bool
	closeOnce sync.Once
}

// Subscribe subscribes to the subject for topic and confirms it with a
// round trip to the server.
func (s *session) Subscribe(topic string, _ broker.QoS) error {
	if err := ValidateSubjectTopic(topic); err != nil {
		return &broker.SubscriptionError{Topic: topic, Code: subackFailure, Err: err}
	}
	if err := s.checkOpen("subscribe"); err != nil {
		return err
	}

	subject := ToNATSSubject(topic)

	s.mu.Lock()
	if _, exists := s.subs[topic]; exists {
		s.mu.Unlock()
		return nil
	}
	sub, err := s.conn.Subscribe(subject, s.handleMessage)
	if err != nil {
		s.mu.Unlock()
		return &broker.TransportError{Op: "subscribe", Err: err}
	}
	s.subs[topic] = sub
	s.mu.Unlock()

	if err := s.conn.FlushTimeout(s.timeout); err != nil {
		return &broker.TransportError{Op: "subscribe", Err: err}
	}

	if err := s.conn.LastError(); isPermissionViolation(err, subject) {
		s.mu.Lock()
		delete(s.subs, topic)
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return &broker.SubscriptionError{Topic: topic, Code: subackFailure, Err: err}
	}

	s.logger.Debug("subscribed to topic",
		"topic", topic,
		"subject", subject)
	return nil
}

// Unsubscribe removes the subscription for topic
func (s *session) Unsubscribe(topic string) error {
	if err := s.checkOpen("unsubscribe"); err != nil {
		return err
	}

	s.mu.Lock()
	sub, exists := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	if !exists {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return &broker.TransportError{Op: "unsubscribe", Err: fmt.Errorf("subject %s: %w", sub.Subject, err)}
	}

	s.logger.Debug("unsubscribed from topic", "topic", topic)
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *session) handleMessage(msg *nats.Msg) {
	if s.handler != nil {
		s.handler(ToMQTTTopic(msg.Subject), msg.Data)
	}
}

func (s *session) checkOpen(op string) error {
	if s.closed.Load() || s.conn == nil || !s.conn.IsConnected() {
		return &broker.TransportError{Op: op, Err: broker.ErrNotConnected}
	}
	return nil
}
