package session

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tthsd/internal/chunkdl"
	"tthsd/internal/event"
	"tthsd/internal/monitor"
)

// recordingSink collects delivered events in arrival order for assertions
// on ordering invariants; safe for concurrent Deliver calls.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
}

func (r *recordingSink) Deliver(e event.Event, _ event.Data) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func testServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(content)
			return
		}
		var start, end int
		_, _ = fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content[start : end+1])
	}))
}

func newTestSession(t *testing.T, n int) (*Session, *recordingSink, []string) {
	t.Helper()
	content := make([]byte, 256*1024)
	rand.New(rand.NewSource(1)).Read(content)
	server := testServer(t, content)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	rs := &recordingSink{}

	var tasks []chunkdl.Task
	var ids []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("task-%d", i)
		tasks = append(tasks, chunkdl.Task{
			URL:      server.URL,
			SavePath: filepath.Join(dir, fmt.Sprintf("out-%d.bin", i)),
			ShowName: fmt.Sprintf("file-%d", i),
			ID:       id,
		})
		ids = append(ids, id)
	}

	cfg, err := NewConfig(tasks, 2, 1, "", rs)
	require.NoError(t, err)

	return New(cfg, monitor.New()), rs, ids
}

func TestStartEmitsStartBeforeAllTaskEvents(t *testing.T) {
	s, rs, ids := newTestSession(t, 2)

	require.NoError(t, s.Start())
	waitUntilIdle(t, s)

	events := rs.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, event.Start, events[0].Type)
	assert.Equal(t, event.End, events[len(events)-1].Type)

	for _, id := range ids {
		startOneIdx, endOneIdx := -1, -1
		for i, e := range events {
			if e.ID != id {
				continue
			}
			if e.Type == event.StartOne && startOneIdx == -1 {
				startOneIdx = i
			}
			if e.Type == event.EndOne {
				endOneIdx = i
			}
		}
		require.NotEqual(t, -1, startOneIdx, "missing startOne for %s", id)
		require.NotEqual(t, -1, endOneIdx, "missing endOne for %s", id)
		assert.Less(t, startOneIdx, endOneIdx)
	}
}

func TestConcurrentStartOnlyOneSucceeds(t *testing.T) {
	s, _, _ := newTestSession(t, 1)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Start()
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRunning)
		}
	}
	assert.Equal(t, 1, successes)

	waitUntilIdle(t, s)
}

func TestPauseEmitsMsgAndAllowsResume(t *testing.T) {
	s, rs, _ := newTestSession(t, 1)

	require.NoError(t, s.Start())
	require.NoError(t, s.Pause())
	waitUntilIdle(t, s)

	found := false
	for _, e := range rs.snapshot() {
		if e.Type == event.Msg {
			found = true
		}
	}
	assert.True(t, found, "expected a msg event after pause")

	require.NoError(t, s.Resume())
	waitUntilIdle(t, s)
}

func TestStopIsIdempotent(t *testing.T) {
	s, _, _ := newTestSession(t, 1)

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	waitUntilIdle(t, s)

	err := s.Stop()
	assert.ErrorIs(t, err, ErrAlreadyStopped)

	assert.ErrorIs(t, s.Start(), ErrAlreadyStopped)
}

func TestDoneClosesWhenRunFinishes(t *testing.T) {
	s, _, _ := newTestSession(t, 1)

	require.NoError(t, s.Start())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done() never closed")
	}
}

func waitUntilIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never became idle")
}
