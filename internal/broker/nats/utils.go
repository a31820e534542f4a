package nats

import (
	"fmt"
	"strings"

	"mqtt-query-bridge/internal/broker"
)

// subjectReserved are characters that have a meaning in NATS subjects and
// would not survive the conversion back to an MQTT topic.
const subjectReserved = ". *>\t\r\n"

// ToNATSSubject converts an MQTT topic format to NATS subject format
// MQTT uses / as separators and +/# as wildcards
// NATS uses . as separators and */> as wildcards
func ToNATSSubject(mqttTopic string) string {
	subject := strings.ReplaceAll(mqttTopic, "+", "*")
	subject = strings.ReplaceAll(subject, "#", ">")
	return strings.ReplaceAll(subject, "/", ".")
}

// ToMQTTTopic converts a NATS subject format to MQTT topic format
func ToMQTTTopic(natsSubject string) string {
	topic := strings.ReplaceAll(natsSubject, "*", "+")
	topic = strings.ReplaceAll(topic, ">", "#")
	return strings.ReplaceAll(topic, ".", "/")
}

// ValidateSubjectTopic reports whether topic can be carried over NATS and
// converted back to the same topic on delivery.
func ValidateSubjectTopic(topic string) error {
	if i := strings.IndexAny(topic, subjectReserved); i >= 0 {
		return fmt.Errorf("%w: %q is not allowed in a NATS subject", broker.ErrInvalidTopic, topic[i])
	}
	return nil
}

// isPermissionViolation reports whether err is the server refusing subject.
func isPermissionViolation(err error, subject string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permissions violation") && strings.Contains(err.Error(), subject)
}
