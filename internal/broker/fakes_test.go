package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

// fakeTransport dials in-memory sessions. Attempts up to failUntil fail;
// a negative failUntil fails every attempt.
type fakeTransport struct {
	mu        sync.Mutex
	failUntil int
	block     bool
	reject    map[string]bool
	attempts  int
	clientIDs []string
	sessions  []*fakeSession
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reject: make(map[string]bool)}
}

func (f *fakeTransport) Address() string {
	return "fake://broker"
}

func (f *fakeTransport) Dial(ctx context.Context, opts DialOptions) (Session, error) {
	f.mu.Lock()
	f.attempts++
	n := f.attempts
	f.clientIDs = append(f.clientIDs, opts.ClientID)
	block := f.block
	fail := f.failUntil < 0 || n <= f.failUntil
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &TransportError{Op: "connect", Err: ctx.Err()}
	}
	if fail {
		return nil, &TransportError{Op: "connect", Err: errRefused}
	}

	s := &fakeSession{
		opts:      opts,
		transport: f,
		subs:      make(map[string]QoS),
	}

	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeTransport) setFailUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUntil = n
}

func (f *fakeTransport) rejectTopic(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[topic] = true
}

func (f *fakeTransport) isRejected(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reject[topic]
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeTransport) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeTransport) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

func (f *fakeTransport) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clientIDs...)
}

type fakeSession struct {
	opts      DialOptions
	transport *fakeTransport

	mu             sync.Mutex
	subs           map[string]QoS
	subscribeCalls int
	unsubscribed   []string
	published      map[string][]byte
	closed         bool
}

func (s *fakeSession) Subscribe(topic string, qos QoS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribeCalls++
	if s.closed {
		return &TransportError{Op: "subscribe", Err: ErrNotConnected}
	}
	if s.transport.isRejected(topic) {
		return &SubscriptionError{Topic: topic, Code: 0x80}
	}
	s.subs[topic] = qos
	return nil
}

func (s *fakeSession) Unsubscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &TransportError{Op: "unsubscribe", Err: ErrNotConnected}
	}
	delete(s.subs, topic)
	s.unsubscribed = append(s.unsubscribed, topic)
	return nil
}

func (s *fakeSession) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &TransportError{Op: "publish", Err: ErrNotConnected}
	}
	if s.published == nil {
		s.published = make(map[string][]byte)
	}
	s.published[topic] = payload
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) hasSubscription(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[topic]
	return ok
}

func (s *fakeSession) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeCalls
}

// drop simulates the broker closing the session.
func (s *fakeSession) drop(err error) {
	s.opts.OnConnectionLost(err)
}

// deliver simulates an inbound message.
func (s *fakeSession) deliver(topic string, payload []byte) {
	s.opts.OnMessage(topic, payload)
}

// stateRecorder collects the states a connection manager passes through.
type stateRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *stateRecorder) listen(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *stateRecorder) states() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnectionState, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.To
	}
	return out
}

func (r *stateRecorder) count(state ConnectionState) int {
	n := 0
	for _, s := range r.states() {
		if s == state {
			n++
		}
	}
	return n
}

func (r *stateRecorder) waitFor(t *testing.T, state ConnectionState, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.count(state) >= n
	}, 2*time.Second, time.Millisecond, "listener never saw %s %d times", state, n)
}

func testOptions() Options {
	return Options{
		ClientIDPrefix: "client",
		ConnectTimeout: 500 * time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
	}
}

func waitForState(t *testing.T, cm *ConnectionManager, state ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cm.State() == state
	}, 2*time.Second, time.Millisecond, "manager never reached %s", state)
}
