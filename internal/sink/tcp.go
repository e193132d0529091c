package sink

import (
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
	"time"

	"tthsd/internal/event"
)

const (
	tcpDialTimeout    = 10 * time.Second
	tcpInitialBackoff = 500 * time.Millisecond
	tcpMaxBackoff     = 5 * time.Second
)

// Tcp is a sink that streams events over a raw TCP connection: each
// message is framed as a 4-byte big-endian length prefix followed by that
// many bytes of JSON (the same {"event":...,"data":...} envelope the
// WebSocket sink writes).
type Tcp struct {
	addr string

	mu       sync.Mutex
	conn     net.Conn
	backoff  time.Duration
	lastDial time.Time
	closed   bool
}

// NewTcp returns a sink that lazily dials addr on first use.
func NewTcp(addr string) *Tcp {
	return &Tcp{addr: addr, backoff: tcpInitialBackoff}
}

func (t *Tcp) Deliver(e event.Event, data event.Data) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	payload, err := event.MarshalEnvelope(e, data)
	if err != nil {
		return err
	}

	conn, err := t.connLocked()
	if err != nil {
		slog.Warn("tcp sink: dropping event, no connection", "addr", t.addr, "err", err)
		return nil
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if _, err := conn.Write(frame); err != nil {
		slog.Warn("tcp sink: write failed, dropping connection", "addr", t.addr, "err", err)
		_ = conn.Close()
		t.conn = nil
		return nil
	}

	return nil
}

func (t *Tcp) connLocked() (net.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}

	if !t.lastDial.IsZero() && time.Since(t.lastDial) < t.backoff {
		return nil, errDialBackoff
	}

	t.lastDial = time.Now()
	conn, err := net.DialTimeout("tcp", t.addr, tcpDialTimeout)
	if err != nil {
		t.backoff *= 2
		if t.backoff > tcpMaxBackoff {
			t.backoff = tcpMaxBackoff
		}
		return nil, err
	}

	t.backoff = tcpInitialBackoff
	t.conn = conn
	return conn, nil
}

func (t *Tcp) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
