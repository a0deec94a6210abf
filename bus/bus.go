// Package bus is a small fire-and-forget event bus. Delivery to a
// subscriber preserves the order a single publisher used for one
// topic; ordering across topics is not guaranteed. A slow subscriber
// drops events rather than blocking the publisher.
package bus

import (
	"sync"
	"time"

	"vesper/log"
)

// Event is what subscribers receive.
type Event struct {
	Topic   string
	Payload any
	At      time.Time
}

// Handler is the tagged sync/async dispatch union. Sync handlers run
// on the subscriber's delivery goroutine in publish order; Async
// handlers are spawned per event and give up ordering.
type Handler struct {
	fn    func(Event)
	async bool
}

func Sync(fn func(Event)) Handler  { return Handler{fn: fn} }
func Async(fn func(Event)) Handler { return Handler{fn: fn, async: true} }

const subscriberBuffer = 64

type subscriber struct {
	h  Handler
	ch chan Event
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Subscribe registers a handler for a topic. Each subscriber gets
// its own delivery goroutine so one failing or slow handler cannot
// stall the others.
func (b *Bus) Subscribe(topic string, h Handler) {
	sub := &subscriber{h: h, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	go sub.run()
}

// Publish delivers to zero or more subscribers and never blocks.
func (b *Bus) Publish(topic string, payload any) {
	ev := Event{Topic: topic, Payload: payload, At: time.Now()}
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			log.Warnf("bus: dropped %s event for slow subscriber", topic)
		}
	}
}

// Close stops delivery. Events already queued are still dispatched.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*subscriber)
}

func (s *subscriber) run() {
	for ev := range s.ch {
		s.dispatch(ev)
	}
}

func (s *subscriber) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("bus: handler panic on %s: %v", ev.Topic, r)
		}
	}()
	if s.h.async {
		go s.h.fn(ev)
		return
	}
	s.h.fn(ev)
}
