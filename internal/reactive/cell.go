// Package reactive provides small observable containers with synchronous,
// subscription-ordered notification.
//
// None of the types are safe for concurrent use. Callers that share them
// across goroutines serialise access themselves (see service.Session).
package reactive

// Unsubscriber detaches a subscription. Calling it more than once is a no-op.
type Unsubscriber func()

type subscriber[T any] struct {
	fn     func(T)
	active bool
}

// Cell holds a single value and notifies subscribers when it changes.
//
// Subscribe replays the current value before returning. A Set issued while
// the same cell is delivering notifications is queued and delivered after the
// current pass, so every subscriber observes every value in order.
type Cell[T any] struct {
	value    T
	equal    func(a, b T) bool
	subs     []*subscriber[T]
	queue    []T
	flushing bool
}

// New creates a cell for a comparable type. Setting an equal value is a no-op.
func New[T comparable](v T) *Cell[T] {
	return NewWithEqual(v, func(a, b T) bool { return a == b })
}

// NewWithEqual creates a cell using equal to suppress redundant updates.
// A nil equal makes every Set notify.
func NewWithEqual[T any](v T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{value: v, equal: equal}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set stores v and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	if c.equal != nil && c.equal(c.value, v) {
		return
	}
	c.value = v
	c.notify(v)
}

// Update sets the cell to fn(current).
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// Subscribe registers fn and immediately calls it with the current value.
func (c *Cell[T]) Subscribe(fn func(T)) Unsubscriber {
	s := &subscriber[T]{fn: fn, active: true}
	c.subs = append(c.subs, s)
	fn(c.value)

	return func() {
		if !s.active {
			return
		}
		s.active = false
		for i, other := range c.subs {
			if other == s {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				break
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (c *Cell[T]) Subscribers() int {
	return len(c.subs)
}

func (c *Cell[T]) notify(v T) {
	c.queue = append(c.queue, v)
	if c.flushing {
		return
	}

	c.flushing = true
	defer func() {
		// Empty unless a subscriber panicked; drop what it left behind.
		c.queue = nil
		c.flushing = false
	}()

	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]

		subs := make([]*subscriber[T], len(c.subs))
		copy(subs, c.subs)
		for _, s := range subs {
			if s.active {
				s.fn(next)
			}
		}
	}
}
