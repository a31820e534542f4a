package nats

import (
	"mqtt-query-bridge/internal/broker"
)

// Publish sends payload to the subject for topic
func (s *session) Publish(topic string, payload []byte) error {
	if err := s.checkOpen("publish"); err != nil {
		return err
	}

	subject := ToNATSSubject(topic)
	if err := s.conn.Publish(subject, payload); err != nil {
		s.logger.Error("failed to publish message",
			"error", err,
			"subject", subject)
		return &broker.TransportError{Op: "publish", Err: err}
	}

	s.logger.Debug("published message",
		"topic", topic,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}
