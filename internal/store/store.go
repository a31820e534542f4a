// Package store keeps the messages received from the broker in memory and
// answers "most recent" reads.
package store

import (
	"sync"
	"time"
)

// Message is an immutable received message. Payload must not be modified
// once the message has been appended.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Store is an append-only, in-memory sequence of messages. Append and the
// read methods may be called concurrently; readers only ever observe
// messages that were fully appended.
type Store struct {
	mu          sync.RWMutex
	messages    []Message
	latest      map[string]Message
	maxMessages int
	appended    uint64
}

// New creates a store. maxMessages > 0 retains only the newest maxMessages
// entries; 0 keeps every message until process exit.
func New(maxMessages int) *Store {
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &Store{
		latest:      make(map[string]Message),
		maxMessages: maxMessages,
	}
}

// Append adds msg to the end of the sequence.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.latest[msg.Topic] = msg
	s.appended++

	// Trim in batches so retention stays amortized O(1)
	if s.maxMessages > 0 && len(s.messages) >= 2*s.maxMessages {
		kept := make([]Message, s.maxMessages, 2*s.maxMessages)
		copy(kept, s.messages[len(s.messages)-s.maxMessages:])
		s.messages = kept
	}
}

// Latest returns the most recently appended message. The boolean is false
// when nothing has been appended yet.
func (s *Store) Latest() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// LatestFor returns the most recent message received on topic.
func (s *Store) LatestFor(topic string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.latest[topic]
	return msg, ok
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.maxMessages > 0 && len(s.messages) > s.maxMessages {
		return s.maxMessages
	}
	return len(s.messages)
}

// Appended returns the total number of messages ever appended.
func (s *Store) Appended() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}

// Topics returns the topics that have received at least one message.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.latest))
	for topic := range s.latest {
		topics = append(topics, topic)
	}
	return topics
}
