package broker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManagerInitialState(t *testing.T) {
	cm := NewConnectionManager(newFakeTransport(), Options{}, nil)

	assert.Equal(t, StateDisconnected, cm.State())
	assert.False(t, cm.IsConnected())
	assert.Nil(t, cm.Session())
	assert.Equal(t, DefaultConnectTimeout, cm.opts.ConnectTimeout)
	assert.Equal(t, DefaultReconnectDelay, cm.opts.ReconnectDelay)

	// Disconnect before Connect is a no-op
	cm.Disconnect()
	assert.Equal(t, StateDisconnected, cm.State())
}

func TestConnectionManagerConnects(t *testing.T) {
	transport := newFakeTransport()
	cm := NewConnectionManager(transport, testOptions(), nil)
	rec := &stateRecorder{}
	cm.OnStateChange(rec.listen)

	require.NoError(t, cm.Connect(context.Background()))
	rec.waitFor(t, StateConnected, 1)

	assert.Equal(t, []ConnectionState{StateConnecting, StateConnected}, rec.states())
	assert.True(t, strings.HasPrefix(cm.ClientID(), "client"))
	assert.Same(t, transport.session(0), cm.Session())
	assert.True(t, transport.session(0).opts.CleanSession)

	cm.Disconnect()
	assert.Equal(t, StateDisconnected, cm.State())
	assert.True(t, transport.session(0).isClosed())
	assert.Nil(t, cm.Session())
}

func TestConnectionManagerConnectIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	cm := NewConnectionManager(transport, testOptions(), nil)

	require.NoError(t, cm.Connect(context.Background()))
	require.NoError(t, cm.Connect(context.Background()))
	waitForState(t, cm, StateConnected)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, transport.attemptCount())
	cm.Disconnect()

	// The manager can be started again after a disconnect
	require.NoError(t, cm.Connect(context.Background()))
	waitForState(t, cm, StateConnected)
	assert.Equal(t, 2, transport.attemptCount())
	cm.Disconnect()
}

func TestConnectionManagerAlwaysFails(t *testing.T) {
	transport := newFakeTransport()
	transport.setFailUntil(-1)
	cm := NewConnectionManager(transport, testOptions(), nil)
	rec := &stateRecorder{}
	cm.OnStateChange(rec.listen)

	require.NoError(t, cm.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return transport.attemptCount() >= 5
	}, 2*time.Second, time.Millisecond)
	cm.Disconnect()

	states := rec.states()
	assert.Zero(t, rec.count(StateConnected))
	assert.Equal(t, StateDisconnected, states[len(states)-1])

	// Attempts alternate connecting -> reconnecting
	for i := 0; i+1 < len(states)-1; i += 2 {
		assert.Equal(t, StateConnecting, states[i])
		assert.Equal(t, StateReconnecting, states[i+1])
	}

	require.Error(t, cm.LastError())
	assert.ErrorIs(t, cm.LastError(), errRefused)

	// Every attempt uses a fresh client identifier
	seen := make(map[string]bool)
	for _, id := range transport.ids() {
		assert.False(t, seen[id], "client id %s reused", id)
		seen[id] = true
	}
}

func TestConnectionManagerSucceedsOnNthAttempt(t *testing.T) {
	transport := newFakeTransport()
	transport.setFailUntil(3)
	cm := NewConnectionManager(transport, testOptions(), nil)
	rec := &stateRecorder{}
	cm.OnStateChange(rec.listen)

	require.NoError(t, cm.Connect(context.Background()))
	rec.waitFor(t, StateConnected, 1)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 4, transport.attemptCount())
	assert.Equal(t, 3, rec.count(StateReconnecting))
	assert.Equal(t, 1, rec.count(StateConnected))
	assert.Equal(t, transport.ids()[3], cm.ClientID())

	cm.Disconnect()
}

type countingBackOff struct {
	next   int32
	resets int32
}

func (b *countingBackOff) NextBackOff() time.Duration {
	atomic.AddInt32(&b.next, 1)
	return time.Millisecond
}

func (b *countingBackOff) Reset() {
	atomic.AddInt32(&b.resets, 1)
}

func TestConnectionManagerUsesBackOff(t *testing.T) {
	transport := newFakeTransport()
	transport.setFailUntil(2)
	bo := &countingBackOff{}
	opts := testOptions()
	opts.BackOff = bo
	cm := NewConnectionManager(transport, opts, nil)

	require.NoError(t, cm.Connect(context.Background()))
	waitForState(t, cm, StateConnected)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&bo.resets) == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&bo.next))

	cm.Disconnect()
}

func TestConnectionManagerReconnectsAfterDrop(t *testing.T) {
	transport := newFakeTransport()
	cm := NewConnectionManager(transport, testOptions(), nil)
	rec := &stateRecorder{}
	cm.OnStateChange(rec.listen)

	require.NoError(t, cm.Connect(context.Background()))
	rec.waitFor(t, StateConnected, 1)

	first := transport.session(0)
	first.drop(errors.New("keepalive timeout"))

	rec.waitFor(t, StateConnected, 2)

	assert.True(t, first.isClosed())
	assert.Same(t, transport.session(1), cm.Session())
	assert.Equal(t, []ConnectionState{
		StateConnecting, StateConnected,
		StateReconnecting,
		StateConnecting, StateConnected,
	}, rec.states())

	var transportErr *TransportError
	require.ErrorAs(t, cm.LastError(), &transportErr)
	assert.Equal(t, "session", transportErr.Op)

	ids := transport.ids()
	assert.NotEqual(t, ids[0], ids[1])

	cm.Disconnect()
}

func TestConnectionManagerConnectTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.block = true
	opts := testOptions()
	opts.ConnectTimeout = 20 * time.Millisecond
	cm := NewConnectionManager(transport, opts, nil)

	require.NoError(t, cm.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return cm.LastError() != nil
	}, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, cm.LastError(), context.DeadlineExceeded)
	cm.Disconnect()
	assert.Equal(t, StateDisconnected, cm.State())
}

func TestConnectionManagerDisconnectCancelsReconnect(t *testing.T) {
	transport := newFakeTransport()
	transport.setFailUntil(-1)
	opts := testOptions()
	opts.ReconnectDelay = time.Hour
	cm := NewConnectionManager(transport, opts, nil)

	require.NoError(t, cm.Connect(context.Background()))
	waitForState(t, cm, StateReconnecting)

	done := make(chan struct{})
	go func() {
		cm.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect did not cancel the pending reconnect")
	}

	assert.Equal(t, StateDisconnected, cm.State())
	assert.Equal(t, 1, transport.attemptCount())
}

func TestConnectionManagerParentContextCancel(t *testing.T) {
	transport := newFakeTransport()
	cm := NewConnectionManager(transport, testOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, cm.Connect(ctx))
	waitForState(t, cm, StateConnected)

	cancel()
	waitForState(t, cm, StateDisconnected)
	assert.True(t, transport.session(0).isClosed())
}

func TestConnectionManagerDeliversMessages(t *testing.T) {
	transport := newFakeTransport()
	cm := NewConnectionManager(transport, testOptions(), nil)

	var received atomic.Int32
	cm.SetMessageHandler(func(topic string, payload []byte) {
		if topic == "motion" && string(payload) == "{}" {
			received.Add(1)
		}
	})

	require.NoError(t, cm.Connect(context.Background()))
	waitForState(t, cm, StateConnected)

	transport.session(0).deliver("motion", []byte("{}"))
	assert.Equal(t, int32(1), received.Load())

	cm.Disconnect()
}
