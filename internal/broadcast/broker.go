// Package broadcast is the in-process change notification port. It
// stands in for the browser storage events the original display relied
// on: every persisted write publishes a timestamped event on its topic,
// and any component interested in a collection re-reads it on delivery.
package broadcast

import (
	"log"
	"sync"
	"time"
)

// Topics for the persisted collections.
const (
	TopicMatches  = "matches"
	TopicTables   = "tables"
	TopicSettings = "settings"
)

// Event signals that the collection behind a topic changed.
type Event struct {
	Topic     string
	Timestamp time.Time
}

// Broker fans change events out to subscribers. Delivery is
// non-blocking: a subscriber that is not draining its channel misses
// events rather than stalling the writer. Subscribers re-read the full
// collection on every event, so a missed event is absorbed by the next.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	closed bool
}

// NewBroker creates an in-memory broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Publish sends an event to every subscriber of the topic.
func (b *Broker) Publish(topic string, at time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	ev := Event{Topic: topic, Timestamp: at}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		default:
			log.Printf("broadcast: subscriber of %q is not keeping up, event dropped", topic)
		}
	}
}

// Subscribe registers a new subscriber channel for a topic. The
// returned cancel function removes the subscription and closes the
// channel.
func (b *Broker) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs[topic] = append(b.subs[topic], ch)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Event)
}
