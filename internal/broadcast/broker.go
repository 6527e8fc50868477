// Package broadcast fans lifecycle events out to in-process subscribers and,
// optionally, to other instances through redis pub/sub.
package broadcast

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/printworks/jobtrack/internal/model"
)

// Forwarder ships locally published events to other instances.
type Forwarder interface {
	Forward(event model.LifecycleEvent)
}

// Subscription is one consumer of a topic. Events arrive on Events in
// publish order per job. When the buffer is full the event is dropped and a
// signal is sent on Gaps; the consumer should then re-fetch state.
type Subscription struct {
	id     uint64
	topic  string
	events chan model.LifecycleEvent
	gaps   chan struct{}
	drops  atomic.Int64
	broker *Broker
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) Events() <-chan model.LifecycleEvent { return s.events }

func (s *Subscription) Gaps() <-chan struct{} { return s.gaps }

// Dropped is the number of events this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.drops.Load() }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.broker.Unsubscribe(s) }

// Broker is a topic based, non-blocking event fan-out.
type Broker struct {
	mu      sync.RWMutex
	topics  map[string]map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	relay   Forwarder
	dropped atomic.Int64
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		topics: make(map[string]map[uint64]*Subscription),
		buffer: buffer,
	}
}

// SetRelay attaches a cross-instance forwarder.
func (b *Broker) SetRelay(f Forwarder) {
	b.mu.Lock()
	b.relay = f
	b.mu.Unlock()
}

// Subscribe registers a consumer of topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topic:  topic,
		events: make(chan model.LifecycleEvent, b.buffer),
		gaps:   make(chan struct{}, 1),
		broker: b,
	}
	if b.closed {
		close(sub.events)
		return sub
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]*Subscription)
	}
	b.topics[topic][sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its event channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.events)
}

// Publish delivers event to the global topic and the job's own topic, then
// hands it to the relay. It never blocks on subscribers.
func (b *Broker) Publish(event model.LifecycleEvent) {
	b.Deliver(event)

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay != nil {
		relay.Forward(event)
	}
}

// Deliver fans event out to local subscribers only. The relay uses it for
// events that arrived from other instances.
func (b *Broker) Deliver(event model.LifecycleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.send(model.TopicAllJobs, event)
	b.send(model.TopicJob(event.JobID), event)
}

func (b *Broker) send(topic string, event model.LifecycleEvent) {
	for _, sub := range b.topics[topic] {
		select {
		case sub.events <- event:
		default:
			sub.drops.Add(1)
			b.dropped.Add(1)
			select {
			case sub.gaps <- struct{}{}:
			default:
			}
			log.Printf("Subscriber %d on %s lagging, dropped event for job %s", sub.id, topic, event.JobID)
		}
	}
}

// Subscribers counts the live subscriptions across all topics.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.topics {
		n += len(subs)
	}
	return n
}

// Dropped is the total number of undelivered events.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }

// Close ends every subscription. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for _, sub := range subs {
			close(sub.events)
		}
		delete(b.topics, topic)
	}
}
