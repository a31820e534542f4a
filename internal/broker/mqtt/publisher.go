package mqtt

import (
	"fmt"

	"mqtt-query-bridge/internal/broker"
)

// Publish sends payload to topic at QoS 0
func (s *session) Publish(topic string, payload []byte) error {
	if err := s.checkOpen("publish"); err != nil {
		return err
	}

	token := s.client.Publish(topic, byte(broker.AtMostOnce), false, payload)
	if !token.WaitTimeout(s.subscribeTimeout) {
		return &broker.TransportError{
			Op:  "publish",
			Err: fmt.Errorf("timed out publishing to %s", topic),
		}
	}
	if err := token.Error(); err != nil {
		s.logger.Error("failed to publish message",
			"error", err,
			"topic", topic)
		return &broker.TransportError{Op: "publish", Err: err}
	}

	s.logger.Debug("published message",
		"topic", topic,
		"payloadSize", len(payload))

	return nil
}
