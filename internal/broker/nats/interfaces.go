package nats

import (
	"mqtt-query-bridge/internal/broker"
)

// subackFailure mirrors the MQTT SUBACK failure code for refused subjects.
const subackFailure byte = 0x80

var (
	_ broker.Transport = (*Transport)(nil)
	_ broker.Session   = (*session)(nil)
)
