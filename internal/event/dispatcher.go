// Package event contains the two notification primitives used by the viewer:
// a synchronous named-event Dispatcher embedded by stateful components, and an
// asynchronous fan-out Bus that carries changes to out-of-process listeners.
package event

// Handler receives the payload of a dispatched event.
type Handler func(data any)

// Handle identifies a registration so it can be removed with Off.
type Handle uint64

type registration struct {
	handle Handle
	fn     Handler
}

// Dispatcher is a named-event pub/sub primitive. Handlers run synchronously
// on the dispatching goroutine, in registration order. It is not safe for
// concurrent use.
type Dispatcher struct {
	events map[string][]registration
	next   Handle
}

// On registers fn for the named event.
func (d *Dispatcher) On(name string, fn Handler) Handle {
	if d.events == nil {
		d.events = make(map[string][]registration)
	}
	d.next++
	d.events[name] = append(d.events[name], registration{handle: d.next, fn: fn})
	return d.next
}

// Off removes a registration. Removing the last handler drops the event.
func (d *Dispatcher) Off(name string, h Handle) {
	regs, ok := d.events[name]
	if !ok {
		return
	}
	for i, r := range regs {
		if r.handle == h {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(d.events, name)
		return
	}
	d.events[name] = regs
}

// Dispatch fires the named event. Handlers registered or removed while the
// event is firing do not affect the current dispatch.
func (d *Dispatcher) Dispatch(name string, data any) {
	regs := d.events[name]
	if len(regs) == 0 {
		return
	}
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	for _, r := range snapshot {
		r.fn(data)
	}
}

// Handlers returns the number of handlers registered for name.
func (d *Dispatcher) Handlers(name string) int {
	return len(d.events[name])
}
