package sink

import (
	"sync"

	"tthsd/internal/event"
)

// Registry is a callback router keyed by task ID: StartOne/EndOne/Err
// events dispatch only to the callback registered for that event's ID,
// rather than broadcasting to every callback, which would misdeliver
// per-task events when multiple downloads share one session.
// Session-wide events (Start, End, Msg, Update) carry no task ID and are
// broadcast to every callback currently registered.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]CallbackFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]CallbackFunc)}
}

// Register associates id (a task ID) with fn. A later Register with the
// same id replaces the previous callback.
func (r *Registry) Register(id string, fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[id] = fn
}

// Unregister removes the callback for id, if any.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, id)
}

// Dispatch routes by e.ID rather than broadcasting: an event carrying a
// task ID goes only to that task's callback, while an event with no ID
// (session-wide) goes to every registered callback.
func (r *Registry) Dispatch(e event.Event, data event.Data) error {
	cb := NewCallback(nil)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e.ID != "" {
		fn, ok := r.callbacks[e.ID]
		if !ok {
			return nil
		}
		cb.fn = fn
		return cb.Deliver(e, data)
	}

	for _, fn := range r.callbacks {
		cb.fn = fn
		if err := cb.Deliver(e, data); err != nil {
			return err
		}
	}
	return nil
}

// Deliver satisfies Sink by calling Dispatch.
func (r *Registry) Deliver(e event.Event, data event.Data) error {
	return r.Dispatch(e, data)
}

// Close clears all registered callbacks.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = make(map[string]CallbackFunc)
	return nil
}
