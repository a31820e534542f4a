package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/logger"
)

// session is one connected Paho client
type session struct {
	client           mqtt.Client
	logger           *logger.Logger
	subscribeTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

// Subscribe waits for the SUBACK. A 0x80 return code is reported as a
// *broker.SubscriptionError.
func (s *session) Subscribe(topic string, qos broker.QoS) error {
	if err := s.checkOpen("subscribe"); err != nil {
		return err
	}

	token := s.client.Subscribe(topic, byte(qos), nil)
	if !token.WaitTimeout(s.subscribeTimeout) {
		return &broker.TransportError{
			Op:  "subscribe",
			Err: fmt.Errorf("timed out waiting for suback on %s", topic),
		}
	}

	if res, ok := token.(subscribeResult); ok {
		if code, found := res.Result()[topic]; found && code == subackFailure {
			return &broker.SubscriptionError{Topic: topic, Code: code, Err: token.Error()}
		}
	}

	if err := token.Error(); err != nil {
		return &broker.TransportError{Op: "subscribe", Err: err}
	}

	s.logger.Debug("subscribed to topic", "topic", topic)
	return nil
}

// Unsubscribe removes the subscription for topic
func (s *session) Unsubscribe(topic string) error {
	if err := s.checkOpen("unsubscribe"); err != nil {
		return err
	}

	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(s.subscribeTimeout) {
		return &broker.TransportError{
			Op:  "unsubscribe",
			Err: fmt.Errorf("timed out waiting for unsuback on %s", topic),
		}
	}
	if err := token.Error(); err != nil {
		return &broker.TransportError{Op: "unsubscribe", Err: err}
	}

	s.logger.Debug("unsubscribed from topic", "topic", topic)
	return nil
}

// Close disconnects the client. It is safe to call more than once.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.client != nil {
			s.client.Disconnect(250)
		}
	})
}

func (s *session) checkOpen(op string) error {
	if s.closed.Load() || !s.client.IsConnectionOpen() {
		return &broker.TransportError{Op: op, Err: broker.ErrNotConnected}
	}
	return nil
}
