// Package bus decouples "the cart changed" from "who needs to know" inside
// one process. Independent consumers (navbar badge, cart page, checkout)
// subscribe here instead of reaching into each other's state.
package bus

import "sync"

// Topic names one class of change notification.
type Topic string

const (
	TopicCart     Topic = "cart-changed"
	TopicIdentity Topic = "identity-changed"
)

// Handler receives the topic that fired. It must read fresh state through
// the store rather than carry state of its own: it only learns that the
// state it can observe is at least as new as the change that fired.
type Handler func(topic Topic)

// Bus is a process-scoped publish/subscribe channel with synchronous
// dispatch: every handler subscribed at publish time runs before Publish
// returns. Handlers see no ordering guarantee among themselves.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]Handler
}

func New() *Bus {
	return &Bus{subs: map[Topic]map[int]Handler{}}
}

// Subscribe registers a handler and returns its disposer. Consumers call the
// disposer when they unmount; a forgotten disposer leaks the handler across
// navigations.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++

	handlers, ok := b.subs[topic]
	if !ok {
		handlers = map[int]Handler{}
		b.subs[topic] = handlers
	}
	handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

// Publish fires topic to all current subscribers, fire-and-forget.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic)
	}
}
