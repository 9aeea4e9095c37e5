// Package pubsub fans session events out to Server-Sent Events streams.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/portfolio-globe/backend/pkg/logger"
)

// ErrClosed is returned once the publisher has been shut down.
var ErrClosed = errors.New("publisher is closed")

// DefaultSubscriberBuffer is the per-subscription channel capacity.
const DefaultSubscriberBuffer = 16

// Event is one published message.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"`
}

// TopicConfig configures replay for late subscribers.
type TopicConfig struct {
	BufferSize int
	ReplayAll  bool
	// DropOldest evicts the oldest queued event when a subscriber falls
	// behind instead of discarding the new one.
	DropOldest bool
}

// Subscription receives the events of one topic.
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Publisher manages subscriptions and publishing.
type Publisher struct {
	mu            sync.Mutex
	subscriptions map[string]map[*subscription]bool
	version       map[string]int
	buffer        map[string][]Event
	config        map[string]TopicConfig
	closed        bool
	SubBuffer     int
}

func NewPublisher() *Publisher {
	return &Publisher{
		subscriptions: make(map[string]map[*subscription]bool),
		version:       make(map[string]int),
		buffer:        make(map[string][]Event),
		config:        make(map[string]TopicConfig),
		SubBuffer:     DefaultSubscriberBuffer,
	}
}

// ConfigureTopic sets buffering for topic.
func (p *Publisher) ConfigureTopic(topic string, cfg TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config[topic] = cfg
}

// Subscribe registers a subscriber. Buffered events are replayed according
// to the topic config. Cancelling ctx closes the subscription.
func (p *Publisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	size := p.SubBuffer
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	sub := &subscription{
		topic:     topic,
		events:    make(chan Event, size),
		publisher: p,
		done:      make(chan struct{}),
	}
	if p.subscriptions[topic] == nil {
		p.subscriptions[topic] = make(map[*subscription]bool)
	}
	p.subscriptions[topic][sub] = true

	cfg := p.config[topic]
	replay := p.buffer[topic]
	if !cfg.ReplayAll && len(replay) > 0 {
		replay = replay[len(replay)-1:]
	}
	for _, ev := range replay {
		sub.deliver(ev, cfg.DropOldest)
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish marshals data and sends it to every subscriber of topic without
// blocking.
func (p *Publisher) Publish(topic, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.version[topic]++
	ev := Event{Topic: topic, Type: eventType, Data: raw, Version: p.version[topic]}

	cfg := p.config[topic]
	if cfg.BufferSize > 0 {
		buf := append(p.buffer[topic], ev)
		if len(buf) > cfg.BufferSize {
			buf = buf[len(buf)-cfg.BufferSize:]
		}
		p.buffer[topic] = buf
	}
	for sub := range p.subscriptions[topic] {
		sub.deliver(ev, cfg.DropOldest)
	}
	return nil
}

// Subscribers counts the live subscriptions of topic.
func (p *Publisher) Subscribers(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscriptions[topic])
}

// CloseTopic ends every subscription of topic and forgets its buffer.
func (p *Publisher) CloseTopic(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subscriptions[topic] {
		sub.finish()
	}
	delete(p.subscriptions, topic)
	delete(p.buffer, topic)
	delete(p.version, topic)
	delete(p.config, topic)
}

// Close ends every subscription. Further calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, subs := range p.subscriptions {
		for sub := range subs {
			sub.finish()
		}
	}
	p.subscriptions = make(map[string]map[*subscription]bool)
	return nil
}

type subscription struct {
	topic     string
	events    chan Event
	publisher *Publisher
	done      chan struct{}
	finished  bool
}

func (s *subscription) Topic() string        { return s.topic }
func (s *subscription) Events() <-chan Event { return s.events }

// deliver runs with the publisher lock held.
func (s *subscription) deliver(ev Event, dropOldest bool) {
	if s.finished {
		return
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	if !dropOldest {
		logger.Warn("[PubSub] subscriber full, dropping event", "topic", s.topic, "version", ev.Version)
		return
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}

// finish runs with the publisher lock held.
func (s *subscription) finish() {
	if s.finished {
		return
	}
	s.finished = true
	close(s.done)
	close(s.events)
}

// Close unsubscribes and closes the events channel.
func (s *subscription) Close() error {
	p := s.publisher
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.finished {
		return nil
	}
	if subs := p.subscriptions[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(p.subscriptions, s.topic)
		}
	}
	s.finish()
	return nil
}
