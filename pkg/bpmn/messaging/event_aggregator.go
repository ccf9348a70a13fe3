package messaging

import (
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// Message is what a publisher hands to the handlers waiting on a topic.
type Message struct {
	CorrelationId      string
	ProcessModelId     string
	ProcessInstanceId  string
	FlowNodeId         string
	FlowNodeInstanceId string
	Payload            any
	Identity           runtime.Identity
	// Err is set on termination and error broadcasts.
	Err error
}

// Callback is invoked synchronously by Publish and must not block.
type Callback func(msg Message)

type Subscription struct {
	Topic string
	id    uint64
	once  bool
}

// EventAggregator is the coordination channel between running handlers and
// the callers that resume them.
type EventAggregator interface {
	// Publish delivers msg to every subscription of topic and returns the
	// number of callbacks invoked.
	Publish(topic string, msg Message) int
	// PublishToFirst delivers msg to the oldest subscription of topic only.
	PublishToFirst(topic string, msg Message) bool
	Subscribe(topic string, callback Callback) *Subscription
	// SubscribeOnce removes the subscription before its callback runs.
	SubscribeOnce(topic string, callback Callback) *Subscription
	Unsubscribe(subscription *Subscription)
}

type subscriber struct {
	subscription *Subscription
	callback     Callback
}

// InMemoryEventAggregator is a mutex-guarded topic registry.
type InMemoryEventAggregator struct {
	mu     sync.Mutex
	nextId uint64
	topics map[string][]subscriber
}

var _ EventAggregator = &InMemoryEventAggregator{}

func NewEventAggregator() *InMemoryEventAggregator {
	return &InMemoryEventAggregator{topics: map[string][]subscriber{}}
}

func (a *InMemoryEventAggregator) Subscribe(topic string, callback Callback) *Subscription {
	return a.subscribe(topic, callback, false)
}

func (a *InMemoryEventAggregator) SubscribeOnce(topic string, callback Callback) *Subscription {
	return a.subscribe(topic, callback, true)
}

func (a *InMemoryEventAggregator) subscribe(topic string, callback Callback, once bool) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextId++
	sub := &Subscription{Topic: topic, id: a.nextId, once: once}
	a.topics[topic] = append(a.topics[topic], subscriber{subscription: sub, callback: callback})
	return sub
}

func (a *InMemoryEventAggregator) Unsubscribe(subscription *Subscription) {
	if subscription == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeLocked(subscription)
}

func (a *InMemoryEventAggregator) removeLocked(subscription *Subscription) bool {
	subs := a.topics[subscription.Topic]
	for i, s := range subs {
		if s.subscription.id == subscription.id {
			subs = append(subs[:i:i], subs[i+1:]...)
			if len(subs) == 0 {
				delete(a.topics, subscription.Topic)
			} else {
				a.topics[subscription.Topic] = subs
			}
			return true
		}
	}
	return false
}

func (a *InMemoryEventAggregator) Publish(topic string, msg Message) int {
	a.mu.Lock()
	subs := append([]subscriber(nil), a.topics[topic]...)
	for _, s := range subs {
		if s.subscription.once {
			a.removeLocked(s.subscription)
		}
	}
	a.mu.Unlock()

	for _, s := range subs {
		s.callback(msg)
	}
	return len(subs)
}

func (a *InMemoryEventAggregator) PublishToFirst(topic string, msg Message) bool {
	a.mu.Lock()
	subs := a.topics[topic]
	if len(subs) == 0 {
		a.mu.Unlock()
		return false
	}
	first := subs[0]
	if first.subscription.once {
		a.removeLocked(first.subscription)
	}
	a.mu.Unlock()

	first.callback(msg)
	return true
}

// SubscriberCount returns the number of subscriptions on topic.
func (a *InMemoryEventAggregator) SubscriberCount(topic string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.topics[topic])
}

// AwaitOnce subscribes once to topic and returns a channel that receives the
// first message. Subscribe before making the state the publisher reacts to
// visible, otherwise the message can be missed.
func AwaitOnce(aggregator EventAggregator, topic string) (<-chan Message, *Subscription) {
	ch := make(chan Message, 1)
	sub := aggregator.SubscribeOnce(topic, func(msg Message) {
		select {
		case ch <- msg:
		default:
		}
	})
	return ch, sub
}
