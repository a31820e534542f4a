package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-query-bridge/internal/broker"
)

// ClientFactory builds a Paho client from options.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// subscribeResult is implemented by *mqtt.SubscribeToken and exposes the
// granted QoS per topic from the SUBACK.
type subscribeResult interface {
	Result() map[string]byte
}

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure byte = 0x80

var (
	_ broker.Transport = (*Transport)(nil)
	_ broker.Session   = (*session)(nil)
)
