package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-query-bridge/internal/broker"
	"mqtt-query-bridge/internal/logger"
)

// SessionSource provides the live broker session, or nil while disconnected.
type SessionSource interface {
	Session() broker.Session
}

// Publisher advances a transformation on every tick and publishes it.
type Publisher struct {
	sessions SessionSource
	topic    string
	interval time.Duration
	logger   *logger.Logger

	mu        sync.Mutex
	current   Transformation
	published uint64
	skipped   uint64
}

// New creates a publisher for topic.
func New(sessions SessionSource, topic string, interval time.Duration, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &Publisher{
		sessions: sessions,
		topic:    topic,
		interval: interval,
		logger:   log,
		current:  NewTransformation(),
	}
}

// Run publishes until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting motion publisher",
		"topic", p.topic,
		"interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("motion publisher stopped",
				"published", atomic.LoadUint64(&p.published),
				"skipped", atomic.LoadUint64(&p.skipped))
			return nil
		case <-ticker.C:
			if err := p.PublishNext(); err != nil {
				p.logger.Warn("failed to publish transformation", "error", err)
			}
		}
	}
}

// PublishNext advances the transformation and publishes it. The
// transformation advances even when there is no session.
func (p *Publisher) PublishNext() error {
	p.mu.Lock()
	p.current.Advance()
	payload, err := json.Marshal(p.current)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal transformation: %w", err)
	}

	session := p.sessions.Session()
	if session == nil {
		atomic.AddUint64(&p.skipped, 1)
		return broker.ErrNotConnected
	}

	if err := session.Publish(p.topic, payload); err != nil {
		atomic.AddUint64(&p.skipped, 1)
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	atomic.AddUint64(&p.published, 1)
	p.logger.Debug("published transformation",
		"topic", p.topic,
		"payloadSize", len(payload))
	return nil
}

// Current returns the latest transformation.
func (p *Publisher) Current() Transformation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Published returns the number of successful publishes.
func (p *Publisher) Published() uint64 {
	return atomic.LoadUint64(&p.published)
}
