package events

import (
	"path/filepath"
	"sync"
	"time"
)

// Event is a single published occurrence: an operation ingest, a sync
// round outcome, a peer state change. Topic is matched against
// subscribers' glob patterns; Payload carries whatever the publisher
// considers the event body (already serialized for wire delivery).
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   string
}

// Subscriber is a channel that receives events matching its pattern.
type Subscriber chan *Event

type subscription struct {
	ch      Subscriber
	pattern string // "*" matches everything
}

// Broker manages topic subscriptions and fans out published events to
// every subscriber whose glob pattern matches the event's topic.
type Broker struct {
	subscribers map[Subscriber]subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a subscription to topics matching pattern ("*" for
// subscribe_all) and returns the channel events arrive on.
func (b *Broker) Subscribe(pattern string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = subscription{ch: sub, pattern: pattern}
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to every subscriber whose pattern matches
// its topic. Non-blocking: a full subscriber buffer drops the event
// for that subscriber rather than blocking the publisher.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !topicMatches(sub.pattern, event.Topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func topicMatches(pattern, topic string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	ok, err := filepath.Match(pattern, topic)
	return err == nil && ok
}
