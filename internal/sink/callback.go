package sink

import (
	"encoding/json"
	"log/slog"

	"tthsd/internal/event"
)

// CallbackFunc mirrors the FFI callback shape: two UTF-8 JSON strings,
// event_json and data_json. In-process callers get Go strings instead of
// C char pointers; the FFI layer (internal/ffi) is responsible for
// marshalling these to C strings at the boundary.
type CallbackFunc func(eventJSON, dataJSON string)

// Callback is the in-process sink variant: it synchronously invokes fn
// with the serialized event and data. A panic escaping fn is recovered,
// logged as a warning, and dropped rather than propagated to the caller.
type Callback struct {
	fn CallbackFunc
}

// NewCallback wraps fn as a Sink.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Deliver(e event.Event, data event.Data) (err error) {
	if c.fn == nil {
		return nil
	}
	if data == nil {
		data = event.Data{}
	}

	eventJSON, err := json.Marshal(e)
	if err != nil {
		return err
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("callback sink: recovered panic from caller callback", "panic", r)
			err = nil
		}
	}()

	c.fn(string(eventJSON), string(dataJSON))
	return nil
}

func (c *Callback) Close() error { return nil }
