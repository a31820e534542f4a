package broker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mqtt-query-bridge/internal/logger"
)

// Registry holds the desired topic subscriptions and keeps them in sync with
// the live session. Topics added while disconnected stay pending and are
// issued on the next connect; a fresh session re-issues every pending and
// active topic.
type Registry struct {
	logger *logger.Logger

	mu      sync.RWMutex
	subs    map[string]*Subscription
	filters *FilterTree
	session Session

	listenersMu sync.RWMutex
	listeners   []SubscriptionListener
}

// NewRegistry creates a registry bound to the connection manager.
func NewRegistry(conn *ConnectionManager, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}

	r := &Registry{
		logger:  log,
		subs:    make(map[string]*Subscription),
		filters: NewFilterTree(),
	}
	conn.OnStateChange(r.handleStateChange)
	r.session = conn.Session()

	return r
}

// OnSubscriptionChange registers a listener for subscription state changes.
func (r *Registry) OnSubscriptionChange(l SubscriptionListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Subscribe registers topic and issues the subscribe request when a session
// is live. Subscribing to an active topic is a no-op; a failed topic is
// retried. On transport errors the topic stays pending and the error is
// returned.
func (r *Registry) Subscribe(topic string) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}

	r.mu.Lock()
	sub, exists := r.subs[topic]
	if exists && sub.State == SubscriptionActive {
		r.mu.Unlock()
		return nil
	}
	if !exists {
		if err := r.filters.Add(topic); err != nil {
			r.mu.Unlock()
			return err
		}
		sub = &Subscription{Topic: topic, QoS: AtMostOnce}
		r.subs[topic] = sub
	}
	sub.State = SubscriptionPending
	sub.LastError = nil
	sub.UpdatedAt = time.Now()
	snapshot := *sub
	session := r.session
	r.mu.Unlock()

	r.notify(snapshot)

	if session == nil {
		r.logger.Info("subscription deferred until connected", "topic", topic)
		return nil
	}

	return r.issue(session, topic)
}

// Unsubscribe removes topic from the registry and from the live session.
func (r *Registry) Unsubscribe(topic string) error {
	r.mu.Lock()
	sub, exists := r.subs[topic]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, topic)
	r.filters.Remove(topic)
	session := r.session
	wasActive := sub.State == SubscriptionActive
	r.mu.Unlock()

	r.logger.Info("removed subscription", "topic", topic)

	if session != nil && wasActive {
		if err := session.Unsubscribe(topic); err != nil {
			return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
		}
	}

	return nil
}

// Get returns a snapshot of the subscription for topic.
func (r *Registry) Get(topic string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[topic]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// Subscriptions returns snapshots of all subscriptions sorted by topic.
func (r *Registry) Subscriptions() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Topic < subs[j].Topic
	})
	return subs
}

// Counts returns the number of subscriptions per state.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int{
		string(SubscriptionPending): 0,
		string(SubscriptionActive):  0,
		string(SubscriptionFailed):  0,
	}
	for _, sub := range r.subs {
		counts[string(sub.State)]++
	}
	return counts
}

// Accepts reports whether a message on topic matches a registered filter
// that has not been rejected by the broker.
func (r *Registry) Accepts(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, filter := range r.filters.Match(topic) {
		if sub, ok := r.subs[filter]; ok && sub.State != SubscriptionFailed {
			return true
		}
	}
	return false
}

func (r *Registry) issue(session Session, topic string) error {
	err := session.Subscribe(topic, AtMostOnce)

	r.mu.Lock()
	sub, exists := r.subs[topic]
	if !exists || r.session != session {
		// Removed meanwhile, or the session was replaced and the next
		// connect re-issues the topic
		r.mu.Unlock()
		return err
	}

	rejected := IsSubscriptionRejected(err)
	switch {
	case err == nil:
		sub.State = SubscriptionActive
		sub.LastError = nil
	case rejected:
		sub.State = SubscriptionFailed
		sub.LastError = err
	default:
		sub.LastError = err
	}
	sub.UpdatedAt = time.Now()
	snapshot := *sub
	r.mu.Unlock()

	r.notify(snapshot)

	switch {
	case err == nil:
		r.logger.Info("subscribed to topic", "topic", topic)
		return nil
	case rejected:
		r.logger.Error("broker rejected subscription", "topic", topic, "error", err)
		return err
	default:
		r.logger.Warn("subscribe request failed, will retry on reconnect", "topic", topic, "error", err)
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
}

func (r *Registry) handleStateChange(change StateChange) {
	if change.To == StateConnected {
		r.resubscribe(change.Session)
		return
	}

	r.mu.Lock()
	r.session = nil
	var demoted []Subscription
	for _, sub := range r.subs {
		if sub.State == SubscriptionActive {
			sub.State = SubscriptionPending
			sub.UpdatedAt = change.At
			demoted = append(demoted, *sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range demoted {
		r.notify(sub)
	}
}

func (r *Registry) resubscribe(session Session) {
	r.mu.Lock()
	r.session = session
	topics := make([]string, 0, len(r.subs))
	for topic, sub := range r.subs {
		if sub.State != SubscriptionFailed {
			sub.State = SubscriptionPending
			topics = append(topics, topic)
		}
	}
	r.mu.Unlock()

	sort.Strings(topics)
	r.logger.Info("issuing subscriptions", "count", len(topics))

	for _, topic := range topics {
		// Errors are logged by issue; the topic stays pending
		_ = r.issue(session, topic)
	}
}

func (r *Registry) notify(sub Subscription) {
	r.listenersMu.RLock()
	listeners := make([]SubscriptionListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		l(sub)
	}
}
