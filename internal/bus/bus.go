// Package bus is a process-wide publish/subscribe channel for "data changed" signals.
//
// Events carry no payload. Listeners re-fetch authoritative state instead of
// trusting anything attached to the notification.
package bus

import "sync"

// EventTasksChanged announces that the remote task set was mutated outside a cache's owner.
const EventTasksChanged = "tasksChanged"

// Listener is invoked with the published event name.
type Listener func(event string)

type subscription struct {
	id int
	fn Listener
}

// Bus dispatches events to listeners synchronously, in registration order.
// The zero value is ready to use.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn for event and returns a function that deregisters it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(event string, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[string][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *Bus) remove(event string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[event]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so an in-progress Publish keeps its own snapshot intact.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = next
		}
		return
	}
}

// Publish invokes every listener registered for event on the caller's goroutine.
// Listeners registered or removed during dispatch take effect from the next Publish.
// A listener that publishes the same event again recurses; there is no cycle breaking.
func (b *Bus) Publish(event string) {
	b.mu.Lock()
	subs := b.subs[event]
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(event)
	}
}

// Len returns the number of listeners registered for event.
func (b *Bus) Len(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}
