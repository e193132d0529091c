package sink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tthsd/internal/event"
)

const (
	wsInitialBackoff = 500 * time.Millisecond
	wsMaxBackoff     = 5 * time.Second
	wsDialTimeout    = 10 * time.Second
)

// WebSocket is a sink that streams events over a WebSocket connection:
// events are serialized as {"event":..., "data":...} and written as a
// single text frame. The connection is dialed lazily on first Deliver and
// redialed with bounded exponential backoff on failure; a disconnected
// sink drops events rather than blocking the engine.
type WebSocket struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	backoff  time.Duration
	lastDial time.Time
	closed   bool
}

// NewWebSocket returns a sink that lazily dials url on first use.
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{url: url, backoff: wsInitialBackoff}
}

func (w *WebSocket) Deliver(e event.Event, data event.Data) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	payload, err := event.MarshalEnvelope(e, data)
	if err != nil {
		return err
	}

	conn, err := w.connLocked()
	if err != nil {
		slog.Warn("websocket sink: dropping event, no connection", "url", w.url, "err", err)
		return nil
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Warn("websocket sink: write failed, dropping connection", "url", w.url, "err", err)
		_ = conn.Close()
		w.conn = nil
		return nil
	}

	return nil
}

// connLocked returns the live connection, dialing (or redialing, subject to
// backoff) if necessary. Caller holds w.mu.
func (w *WebSocket) connLocked() (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}

	if !w.lastDial.IsZero() && time.Since(w.lastDial) < w.backoff {
		return nil, errDialBackoff
	}

	w.lastDial = time.Now()
	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	conn, _, err := dialer.Dial(w.url, nil)
	if err != nil {
		w.backoff *= 2
		if w.backoff > wsMaxBackoff {
			w.backoff = wsMaxBackoff
		}
		return nil, err
	}

	w.backoff = wsInitialBackoff
	w.conn = conn
	return conn, nil
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

var errDialBackoff = &backoffError{}

type backoffError struct{}

func (*backoffError) Error() string { return "websocket sink: still within reconnect backoff window" }
