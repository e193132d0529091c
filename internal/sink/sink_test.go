package sink

import (
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tthsd/internal/event"
)

func TestNoopDeliverAndClose(t *testing.T) {
	var s Noop
	assert.NoError(t, s.Deliver(event.Event{}, nil))
	assert.NoError(t, s.Close())
}

func TestCallbackDeliversJSON(t *testing.T) {
	var gotEvent, gotData string
	cb := NewCallback(func(eventJSON, dataJSON string) {
		gotEvent, gotData = eventJSON, dataJSON
	})

	err := cb.Deliver(event.Event{Type: event.Update, ID: "task-1"}, event.Data{"downloaded_bytes": 5})
	require.NoError(t, err)
	assert.Contains(t, gotEvent, `"ID":"task-1"`)
	assert.Contains(t, gotData, `"downloaded_bytes":5`)
}

func TestCallbackSwallowsPanic(t *testing.T) {
	cb := NewCallback(func(string, string) {
		panic("caller blew up")
	})
	err := cb.Deliver(event.Event{Type: event.Msg}, nil)
	assert.NoError(t, err)
}

func TestCallbackNilFuncIsNoop(t *testing.T) {
	cb := NewCallback(nil)
	assert.NoError(t, cb.Deliver(event.Event{}, nil))
	assert.NoError(t, cb.Close())
}

func TestRegistryRoutesByID(t *testing.T) {
	r := NewRegistry()

	var gotA, gotB bool
	r.Register("task-a", func(string, string) { gotA = true })
	r.Register("task-b", func(string, string) { gotB = true })

	require.NoError(t, r.Dispatch(event.Event{Type: event.Update, ID: "task-a"}, nil))
	assert.True(t, gotA)
	assert.False(t, gotB)
}

func TestRegistryBroadcastsSessionWideEvents(t *testing.T) {
	r := NewRegistry()

	var countA, countB int
	r.Register("task-a", func(string, string) { countA++ })
	r.Register("task-b", func(string, string) { countB++ })

	require.NoError(t, r.Dispatch(event.Event{Type: event.End}, nil))
	assert.Equal(t, 1, countA)
	assert.Equal(t, 1, countB)
}

func TestRegistryDropsUnknownID(t *testing.T) {
	r := NewRegistry()
	r.Register("task-a", func(string, string) { t.Fatal("should not be called") })
	assert.NoError(t, r.Dispatch(event.Event{Type: event.EndOne, ID: "task-unknown"}, nil))
}

func TestTcpSinkFramesMessages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		received <- payload
	}()

	sink := NewTcp(ln.Addr().String())
	defer sink.Close()

	err = sink.Deliver(event.Event{Type: event.Msg}, event.Data{"text": "hello"})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Contains(t, string(payload), `"text":"hello"`)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for framed message")
	}
}

func TestTcpSinkCloseIdempotent(t *testing.T) {
	sink := NewTcp("127.0.0.1:0")
	assert.NoError(t, sink.Close())
	assert.NoError(t, sink.Close())
}

func TestWebSocketSinkDeliversTextFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	sink := NewWebSocket(wsURL)
	defer sink.Close()

	err := sink.Deliver(event.Event{Type: event.Start}, event.Data{"total_bytes": 10})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), `"total_bytes":10`)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket message")
	}
}

func TestWebSocketSinkCloseIdempotent(t *testing.T) {
	sink := NewWebSocket("ws://127.0.0.1:0")
	assert.NoError(t, sink.Close())
	assert.NoError(t, sink.Close())
}
