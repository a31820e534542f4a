package broker

import (
	"context"
	"time"
)

// MessageHandler receives messages delivered by a session. It runs on the
// transport's delivery goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// DialOptions configures a single connection attempt.
type DialOptions struct {
	// ClientID is unique per attempt.
	ClientID string
	// CleanSession asks the broker to discard subscription state on disconnect.
	CleanSession bool
	// ConnectTimeout bounds the attempt; the dial context carries the same deadline.
	ConnectTimeout time.Duration
	// OnMessage is invoked for every delivered message.
	OnMessage MessageHandler
	// OnConnectionLost is invoked at most once when an established session drops.
	OnConnectionLost func(err error)
}

// Transport opens sessions to a broker.
type Transport interface {
	// Dial establishes a new session. It returns a *TransportError on failure.
	Dial(ctx context.Context, opts DialOptions) (Session, error)
	// Address returns the broker address used for logging.
	Address() string
}

// Session is one live connection to the broker. A session is never reused
// after it is lost or closed.
type Session interface {
	// Subscribe blocks until the broker acknowledges or rejects the request.
	// Rejections are reported as *SubscriptionError.
	Subscribe(topic string, qos QoS) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	Close()
}
