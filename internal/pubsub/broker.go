package pubsub

import (
	"sync"
)

// Wildcard is the pseudo-topic used by SubscribeAll.
const Wildcard = "*"

// Message is a single published value.
type Message struct {
	Topic   string
	Payload any
}

// Handler receives published messages.
type Handler func(Message)

// Subscription is a live registration returned by Subscribe. Cancel is safe to
// call more than once and from inside the handler itself.
type Subscription struct {
	broker  *Broker
	topic   string
	handler Handler

	mu        sync.Mutex
	cancelled bool
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string {
	if s == nil {
		return ""
	}
	return s.topic
}

// Cancel removes the subscription. A message that is being delivered when
// Cancel runs is not delivered to this subscription afterwards.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	s.broker.remove(s)
}

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Subscription) deliver(msg Message) {
	if s.Cancelled() {
		return
	}
	s.handler(msg)
}

// Option customizes a Broker.
type Option func(*Broker)

// WithRecover makes the broker recover handler panics and report them to fn
// instead of propagating them to the publisher.
func WithRecover(fn func(msg Message, recovered any)) Option {
	return func(b *Broker) {
		b.onPanic = fn
	}
}

// Broker routes messages to topic subscribers.
type Broker struct {
	mu            sync.RWMutex
	subscriptions map[string][]*Subscription
	onPanic       func(Message, any)
}

// NewBroker returns an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{subscriptions: map[string][]*Subscription{}}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers handler for topic.
func (b *Broker) Subscribe(topic string, handler Handler) *Subscription {
	sub := &Subscription{broker: b, topic: topic, handler: handler}
	if handler == nil {
		sub.cancelled = true
		return sub
	}
	b.mu.Lock()
	b.subscriptions[topic] = append(b.subscriptions[topic], sub)
	b.mu.Unlock()
	return sub
}

// SubscribeAll registers handler for every topic.
func (b *Broker) SubscribeAll(handler Handler) *Subscription {
	return b.Subscribe(Wildcard, handler)
}

// Publish delivers payload to the topic subscribers followed by the wildcard
// subscribers. The subscriber list is captured when Publish starts, so
// handlers added during delivery only see later messages.
func (b *Broker) Publish(topic string, payload any) {
	b.mu.RLock()
	specific := append([]*Subscription(nil), b.subscriptions[topic]...)
	var wildcard []*Subscription
	if topic != Wildcard {
		wildcard = append(wildcard, b.subscriptions[Wildcard]...)
	}
	b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, sub := range specific {
		b.call(sub, msg)
	}
	for _, sub := range wildcard {
		b.call(sub, msg)
	}
}

// Count returns the number of live subscriptions on topic.
func (b *Broker) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions[topic])
}

func (b *Broker) call(sub *Subscription, msg Message) {
	if b.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				b.onPanic(msg, r)
			}
		}()
	}
	sub.deliver(msg)
}

func (b *Broker) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscriptions[target.topic]
	for i, sub := range subs {
		if sub == target {
			b.subscriptions[target.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[target.topic]) == 0 {
		delete(b.subscriptions, target.topic)
	}
}
