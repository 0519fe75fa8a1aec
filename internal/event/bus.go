package event

import (
	"slices"
	"sync"
	"sync/atomic"
)

// SubscriptionBuffer is the number of changes a subscriber may lag behind
// before it starts missing them.
const SubscriptionBuffer = 64

// Change describes one library, map or notification change.
type Change struct {
	Topic string // "library", "map" or "notification"
	Name  string // event name, e.g. "layerAdded" or "notificationAdded"
	ID    string // layer, group or notification id, if any
	Data  any
}

// Bus carries changes from the event loop to out-of-process listeners such
// as SSE streams. Publish never blocks: a subscriber whose buffer is full
// misses the change and its Dropped count goes up.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives the changes of the topics it asked for.
type Subscription struct {
	bus     *Bus
	ch      chan Change
	topics  []string
	dropped atomic.Uint64
	once    sync.Once
}

// Subscribe returns a subscription for the given topics, or for every topic
// when none are given.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	s := &Subscription{
		bus:    b,
		ch:     make(chan Change, SubscriptionBuffer),
		topics: topics,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers c to every subscription that wants its topic.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(c.Topic) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C returns the channel changes arrive on. It is closed by Close.
func (s *Subscription) C() <-chan Change { return s.ch }

// Dropped returns how many changes this subscription missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(topic string) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}
