// Package broker owns the subscriber side of the bridge: the transport
// session lifecycle, the subscription registry and the inbound message sink.
package broker

import (
	"time"
)

// ConnectionState represents the current state of the broker connection
type ConnectionState string

const (
	// StateDisconnected indicates no session exists and none is being attempted
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting indicates a connection attempt is in flight
	StateConnecting ConnectionState = "connecting"
	// StateConnected indicates a live session
	StateConnected ConnectionState = "connected"
	// StateReconnecting indicates the manager is waiting to retry after a transport error
	StateReconnecting ConnectionState = "reconnecting"
)

// SubscriptionState represents the lifecycle of a single topic subscription
type SubscriptionState string

const (
	// SubscriptionPending means the subscribe request has not been acknowledged
	// on the current session yet.
	SubscriptionPending SubscriptionState = "pending"
	// SubscriptionActive means the broker acknowledged the subscription.
	SubscriptionActive SubscriptionState = "active"
	// SubscriptionFailed means the broker rejected the subscription.
	SubscriptionFailed SubscriptionState = "failed"
)

// QoS is the MQTT delivery guarantee of a subscription.
type QoS byte

// AtMostOnce is the only delivery level used by the bridge.
const AtMostOnce QoS = 0

// Subscription is a snapshot of a registry entry.
type Subscription struct {
	Topic     string
	QoS       QoS
	State     SubscriptionState
	LastError error
	UpdatedAt time.Time
}

// StateChange describes a single connection state transition.
type StateChange struct {
	From     ConnectionState
	To       ConnectionState
	ClientID string
	Err      error
	// Session is set only when To is StateConnected.
	Session Session
	Attempt int
	At      time.Time
}

// StateListener observes connection state transitions.
type StateListener func(StateChange)

// SubscriptionListener observes subscription state changes.
type SubscriptionListener func(Subscription)
