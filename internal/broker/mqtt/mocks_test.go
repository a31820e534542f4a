package mqtt

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

// NewMockToken returns a completed token
func NewMockToken() *MockToken {
	done := make(chan struct{})
	close(done)
	return &MockToken{done: done}
}

// NewPendingToken returns a token that never completes
func NewPendingToken() *MockToken {
	return &MockToken{done: make(chan struct{})}
}

func NewErrorToken(err error) *MockToken {
	t := NewMockToken()
	t.err = err
	return t
}

func (t *MockToken) Wait() bool {
	<-t.done
	return true
}

func (t *MockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *MockToken) Error() error          { return t.err }
func (t *MockToken) Done() <-chan struct{} { return t.done }

// MockSubscribeToken carries SUBACK return codes
type MockSubscribeToken struct {
	*MockToken
	result map[string]byte
}

func (t *MockSubscribeToken) Result() map[string]byte { return t.result }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	opts          *mqtt.ClientOptions
	connected     atomic.Bool
	connectFunc   func() mqtt.Token
	publishFunc   func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	subscribeFunc func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token

	mu           sync.Mutex
	published    map[string][]byte
	unsubscribed []string
	disconnects  int
}

func NewMockClient(opts *mqtt.ClientOptions) *MockClient {
	m := &MockClient{
		opts:      opts,
		published: make(map[string][]byte),
	}
	m.connectFunc = func() mqtt.Token {
		return NewMockToken()
	}
	m.publishFunc = func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.published[topic] = payload.([]byte)
		return NewMockToken()
	}
	m.subscribeFunc = func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
		return &MockSubscribeToken{
			MockToken: NewMockToken(),
			result:    map[string]byte{topic: qos},
		}
	}
	return m
}

func (m *MockClient) Connect() mqtt.Token {
	token := m.connectFunc()
	if mt, ok := token.(*MockToken); ok && mt.err == nil {
		select {
		case <-mt.done:
			m.connected.Store(true)
		default:
		}
	}
	return token
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected.Store(false)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.publishFunc(topic, qos, retained, payload)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.subscribeFunc(topic, qos, callback)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}

func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topics...)
	return NewMockToken()
}

func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                   { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                              { return m.connected.Load() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(m.opts)
}

// deliver invokes the default publish handler the transport installed
func (m *MockClient) deliver(topic string, payload []byte) {
	m.opts.DefaultPublishHandler(m, &MockMessage{topic: topic, payload: payload})
}

// lose invokes the connection lost handler the transport installed
func (m *MockClient) lose(err error) {
	m.connected.Store(false)
	m.opts.OnConnectionLost(m, err)
}

func (m *MockClient) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

var errMockRefused = errors.New("connection refused: not authorized")
