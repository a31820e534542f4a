package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"mqtt-query-bridge/internal/logger"
)

const (
	// DefaultConnectTimeout bounds a single connection attempt.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultReconnectDelay is the fixed pause between a transport error and the next attempt.
	DefaultReconnectDelay = time.Second
)

// Options configures the connection manager.
type Options struct {
	// ClientIDPrefix is prepended to the random part of every client identifier.
	ClientIDPrefix string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	// BackOff yields the pause before each retry and is reset once connected.
	// Nil means a constant ReconnectDelay.
	BackOff backoff.BackOff
}

// ConnectionManager owns the transport session to the broker. It connects,
// reconnects after a fixed delay on any transport error and publishes every
// state transition to registered listeners.
type ConnectionManager struct {
	transport Transport
	opts      Options
	logger    *logger.Logger

	mu        sync.RWMutex
	state     ConnectionState
	clientID  string
	lastError error
	session   Session
	handler   MessageHandler
	cancel    context.CancelFunc
	done      chan struct{}

	listenersMu sync.RWMutex
	listeners   []StateListener
}

// NewConnectionManager creates a manager in the disconnected state.
func NewConnectionManager(transport Transport, opts Options, log *logger.Logger) *ConnectionManager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.BackOff == nil {
		opts.BackOff = backoff.NewConstantBackOff(opts.ReconnectDelay)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &ConnectionManager{
		transport: transport,
		opts:      opts,
		logger:    log.With("broker", transport.Address()),
		state:     StateDisconnected,
	}
}

// SetMessageHandler sets the handler invoked for every delivered message.
func (cm *ConnectionManager) SetMessageHandler(h MessageHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.handler = h
}

// OnStateChange registers a listener. Listeners run synchronously on the
// manager's goroutine in transition order and must not call Disconnect.
func (cm *ConnectionManager) OnStateChange(l StateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.listeners = append(cm.listeners, l)
}

// Connect starts the connection loop and returns immediately. Calling it
// while the loop is running is a no-op.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cm.cancel = cancel
	cm.done = done

	go cm.run(runCtx, done)
	return nil
}

// Disconnect cancels any pending attempt or reconnect, closes the live
// session and waits until the manager is disconnected.
func (cm *ConnectionManager) Disconnect() {
	cm.mu.RLock()
	cancel, done, session := cm.cancel, cm.done, cm.session
	cm.mu.RUnlock()

	if cancel == nil {
		return
	}

	cm.logger.Info("disconnecting from broker")
	cancel()
	if session != nil {
		// Unblocks requests still waiting on this session
		session.Close()
	}
	<-done
}

// State returns the current connection state.
func (cm *ConnectionManager) State() ConnectionState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.state
}

// IsConnected returns current connection status
func (cm *ConnectionManager) IsConnected() bool {
	return cm.State() == StateConnected
}

// ClientID returns the identifier of the current or most recent attempt.
func (cm *ConnectionManager) ClientID() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clientID
}

// LastError returns the most recent transport error, if any.
func (cm *ConnectionManager) LastError() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastError
}

// Session returns the live session, or nil when not connected.
func (cm *ConnectionManager) Session() Session {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.session
}

func (cm *ConnectionManager) run(ctx context.Context, done chan struct{}) {
	attempt := 0

	defer func() {
		cm.mu.Lock()
		session := cm.session
		cm.session = nil
		cm.mu.Unlock()

		if session != nil {
			session.Close()
		}
		cm.transition(StateDisconnected, "", nil, nil, attempt)

		cm.mu.Lock()
		if cm.done == done {
			cm.cancel = nil
			cm.done = nil
		}
		cm.mu.Unlock()
		close(done)
	}()

	for {
		attempt++
		clientID := cm.newClientID()
		cm.transition(StateConnecting, clientID, nil, nil, attempt)

		lost := make(chan error, 1)
		session, err := cm.dial(ctx, clientID, lost)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cm.logger.Error("connection attempt failed",
				"clientId", clientID,
				"attempt", attempt,
				"error", err)
			cm.transition(StateReconnecting, clientID, err, nil, attempt)
			if !cm.wait(ctx) {
				return
			}
			continue
		}

		cm.mu.Lock()
		cm.session = session
		cm.mu.Unlock()
		cm.transition(StateConnected, clientID, nil, session, attempt)
		cm.opts.BackOff.Reset()
		attempt = 0

		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			if ctx.Err() != nil {
				return
			}

			cm.mu.Lock()
			cm.session = nil
			cm.mu.Unlock()
			session.Close()

			lostErr := &TransportError{Op: "session", Err: err}
			cm.logger.Error("broker connection lost",
				"clientId", clientID,
				"error", err)
			cm.transition(StateReconnecting, clientID, lostErr, nil, attempt)
			if !cm.wait(ctx) {
				return
			}
		}
	}
}

func (cm *ConnectionManager) dial(ctx context.Context, clientID string, lost chan error) (Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.opts.ConnectTimeout)
	defer cancel()

	session, err := cm.transport.Dial(dialCtx, DialOptions{
		ClientID:       clientID,
		CleanSession:   true,
		ConnectTimeout: cm.opts.ConnectTimeout,
		OnMessage:      cm.deliver,
		OnConnectionLost: func(err error) {
			select {
			case lost <- err:
			default:
			}
		},
	})
	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			err = &TransportError{Op: "connect", Err: err}
		}
		return nil, err
	}

	// A dial that outlived its deadline still counts as a timeout
	if dialCtx.Err() != nil && ctx.Err() == nil {
		session.Close()
		return nil, &TransportError{Op: "connect", Err: dialCtx.Err()}
	}

	return session, nil
}

// wait sleeps for the next reconnect delay; false means the manager was stopped.
func (cm *ConnectionManager) wait(ctx context.Context) bool {
	delay := cm.opts.BackOff.NextBackOff()
	if delay == backoff.Stop {
		delay = cm.opts.ReconnectDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (cm *ConnectionManager) deliver(topic string, payload []byte) {
	cm.mu.RLock()
	h := cm.handler
	cm.mu.RUnlock()

	if h != nil {
		h(topic, payload)
	}
}

func (cm *ConnectionManager) newClientID() string {
	return cm.opts.ClientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (cm *ConnectionManager) transition(to ConnectionState, clientID string, err error, session Session, attempt int) {
	cm.mu.Lock()
	from := cm.state
	cm.state = to
	if clientID != "" {
		cm.clientID = clientID
	}
	if err != nil {
		cm.lastError = err
	}
	if clientID == "" {
		clientID = cm.clientID
	}
	cm.mu.Unlock()

	if err != nil {
		cm.logger.Warn("connection state changed",
			"from", from,
			"to", to,
			"clientId", clientID,
			"error", err)
	} else {
		cm.logger.Info("connection state changed",
			"from", from,
			"to", to,
			"clientId", clientID)
	}

	change := StateChange{
		From:     from,
		To:       to,
		ClientID: clientID,
		Err:      err,
		Session:  session,
		Attempt:  attempt,
		At:       time.Now(),
	}

	cm.listenersMu.RLock()
	listeners := make([]StateListener, len(cm.listeners))
	copy(listeners, cm.listeners)
	cm.listenersMu.RUnlock()

	for _, l := range listeners {
		l(change)
	}
}
