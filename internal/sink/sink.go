// Package sink implements the transport sinks events are delivered through:
// one abstract Deliver method, dispatched at every event emission, with
// three concrete variants (in-process callback, WebSocket, raw TCP) plus a
// no-op.
package sink

import (
	"tthsd/internal/event"
)

// Sink delivers one event/data pair. Implementations must be safe for
// concurrent use and must serialize their own writes. Closing a Sink is
// idempotent.
type Sink interface {
	Deliver(e event.Event, data event.Data) error
	Close() error
}

// Noop discards every event; it's the default sink when none is configured.
type Noop struct{}

func (Noop) Deliver(event.Event, event.Data) error { return nil }
func (Noop) Close() error                          { return nil }
