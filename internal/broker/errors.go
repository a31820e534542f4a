package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live session.
	ErrNotConnected = errors.New("not connected to broker")
	// ErrInvalidTopic is returned for malformed topic filters.
	ErrInvalidTopic = errors.New("invalid topic filter")
)

// TransportError reports a connection-level failure: refused connections,
// timeouts, protocol violations and lost sessions. The connection manager
// recovers from these by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports that the broker rejected a subscribe request.
type SubscriptionError struct {
	Topic string
	Code  byte
	Err   error
}

func (e *SubscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription to %q rejected (code 0x%02x): %v", e.Topic, e.Code, e.Err)
	}
	return fmt.Sprintf("subscription to %q rejected (code 0x%02x)", e.Topic, e.Code)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// IsSubscriptionRejected reports whether err is a broker rejection rather
// than a transport failure.
func IsSubscriptionRejected(err error) bool {
	var subErr *SubscriptionError
	return errors.As(err, &subErr)
}
