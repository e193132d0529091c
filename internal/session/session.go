// Package session implements the runnable download unit: it owns a task
// list, fans the tasks out to the chunked download engine, aggregates
// telemetry, and honors a single shared cancel signal for pause/stop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tthsd/internal/chunkdl"
	"tthsd/internal/event"
	"tthsd/internal/monitor"
	"tthsd/internal/sink"
)

// ErrAlreadyRunning is returned by Start/StartMultiple when the session is
// already running.
var ErrAlreadyRunning = errors.New("already running")

// ErrNotRunning is returned by Pause when there is no in-flight run to pause.
var ErrNotRunning = errors.New("not running")

// ErrAlreadyStopped is returned by Stop on a session that has already been
// stopped; stop is idempotent and returns this error on every call after
// the first.
var ErrAlreadyStopped = errors.New("already stopped")

const telemetryInterval = 500 * time.Millisecond

const (
	msgPaused  = "下载已暂停"
	msgStopped = "下载已停止"
)

// Session is the mutable center of a download run: a config, a sink, a
// cancel signal, and an advisory current-task index for UIs.
type Session struct {
	config *Config
	mon    *monitor.Monitor

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	stopped bool
	done    chan struct{}

	currentTaskIndex atomic.Int64
}

// New constructs a Session bound to cfg, reporting byte progress to mon
// (pass monitor.Global() to share the process-wide singleton, or a fresh
// monitor.New() for test isolation).
func New(cfg *Config, mon *monitor.Monitor) *Session {
	if mon == nil {
		mon = monitor.Global()
	}
	return &Session{config: cfg, mon: mon}
}

// Config exposes the session's configuration for callers that need to
// mutate its sink or task list between runs.
func (s *Session) Config() *Config { return s.config }

// CurrentTaskIndex is the advisory 0-based index of the task most recently
// started, for UI progress display.
func (s *Session) CurrentTaskIndex() int { return int(s.currentTaskIndex.Load()) }

// Start begins running every task in the config. Start and StartMultiple
// share one implementation; there is no behavioral distinction between
// starting one task and starting several.
func (s *Session) Start() error { return s.start() }

// StartMultiple is a synonym for Start; see its doc comment.
func (s *Session) StartMultiple() error { return s.start() }

// Resume is equivalent to Start from the current task list. Because no
// on-disk chunk map is persisted, resume restarts every task from the
// beginning — an acknowledged limitation, not a bug this module fixes.
func (s *Session) Resume() error { return s.start() }

func (s *Session) start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, done)
	return nil
}

// Done returns a channel that closes once the current (or most recently
// started) run finishes, for callers like the CLI that need to block until
// the session's end event without polling internal state. Returns nil if
// Start has never been called.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		close(done)
	}()

	snap := s.config.Snapshot()

	s.deliver(snap.Sink, event.Event{Type: event.Start}, event.Data{})

	telemetryDone := make(chan struct{})
	go s.telemetryLoop(ctx, snap.Sink, telemetryDone)

	var wg sync.WaitGroup
	for i, task := range snap.Tasks {
		wg.Add(1)
		go func(index int, t chunkdl.Task) {
			defer wg.Done()
			s.currentTaskIndex.Store(int64(index))
			s.runTask(ctx, snap, t, index, len(snap.Tasks))
		}(i, task)
	}

	wg.Wait()
	close(telemetryDone)

	s.deliver(snap.Sink, event.Event{Type: event.End}, event.Data{})
}

// runTask emits startOne, then (err iff failed), then exactly one endOne
// for the task.
func (s *Session) runTask(ctx context.Context, snap Snapshot, task chunkdl.Task, index, total int) {
	taskData := event.TaskData(task.URL, task.SavePath, task.ShowName, index+1, total)
	s.deliver(snap.Sink, event.Event{Type: event.StartOne, ID: task.ID, Name: task.ShowName, ShowName: task.ShowName}, taskData)

	_, err := chunkdl.Run(ctx, task, chunkdl.Options{
		ThreadCount: snap.ThreadCount,
		ChunkSizeMB: snap.ChunkSizeMB,
		UserAgent:   snap.UserAgent,
	}, s.mon)

	// Cancellation stays silent here; the session-level pause/stop msg
	// event already covers it.
	if err != nil && !errors.Is(err, chunkdl.ErrCancelled) {
		s.deliver(snap.Sink, event.Event{Type: event.Err, ID: task.ID}, event.ErrorData(err))
	}

	s.deliver(snap.Sink, event.Event{Type: event.EndOne, ID: task.ID, Name: task.ShowName, ShowName: task.ShowName}, taskData)
}

// telemetryLoop polls the performance monitor every 500ms and emits an
// update event.
func (s *Session) telemetryLoop(ctx context.Context, sk sink.Sink, done <-chan struct{}) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			stats := s.mon.GetStats()
			s.deliver(sk, event.Event{Type: event.Update}, stats.ToEventData())
		}
	}
}

// Pause fires the cancel signal so in-flight chunk I/O unwinds at its next
// suspension point, waits for the run loop to exit (its cleanup clears the
// running flag and the cancel signal), then emits the "paused" msg event.
// A Resume is therefore valid as soon as Pause returns.
func (s *Session) Pause() error {
	s.mu.Lock()
	cancel := s.cancel
	running := s.running
	done := s.done
	snap := s.config.Snapshot()
	s.mu.Unlock()

	if !running || cancel == nil {
		return ErrNotRunning
	}

	cancel()
	<-done
	s.deliver(snap.Sink, event.Event{Type: event.Msg}, event.MsgData(msgPaused))
	return nil
}

// Stop fires the cancel signal, closes the sink, and marks the session
// unusable. A second Stop call returns an error and emits nothing
// further.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.stopped = true
	cancel := s.cancel
	snap := s.config.Snapshot()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.deliver(snap.Sink, event.Event{Type: event.Msg}, event.MsgData(msgStopped))
	if snap.Sink != nil {
		if err := snap.Sink.Close(); err != nil {
			slog.Warn("session: error closing sink on stop", "err", err)
		}
	}
	return nil
}

// deliver swallows sink errors: sink failures are best-effort telemetry
// and must not affect the download itself.
func (s *Session) deliver(sk sink.Sink, e event.Event, data event.Data) {
	if sk == nil {
		return
	}
	if err := sk.Deliver(e, data); err != nil {
		slog.Warn("session: sink delivery failed", "event_type", e.Type, "err", err)
	}
}
