// Package ffi shapes the exported functions a foreign language binding
// would call into. It deliberately does not import "C": exported
// functions here use plain Go string/int types so a thin cgo shim
// elsewhere can wrap them with *C.char conversions without this module
// needing a C toolchain to build or test.
package ffi

import (
	"encoding/json"
	"fmt"
	"sync"

	"tthsd/internal/chunkdl"
	"tthsd/internal/manager"
	"tthsd/internal/session"
	"tthsd/internal/sink"
)

// taskJSON mirrors the wire shape of one tasks_json entry.
type taskJSON struct {
	URL      string `json:"url"`
	SavePath string `json:"save_path"`
	ShowName string `json:"show_name"`
	ID       string `json:"id"`
}

// Surface bundles the session manager and the callback registry that
// routes events back to FFI callers by task ID.
type Surface struct {
	manager  *manager.Manager
	registry *sink.Registry

	mu        sync.Mutex
	callbacks map[int64]sink.CallbackFunc
}

// NewSurface constructs an empty FFI surface.
func NewSurface() *Surface {
	return &Surface{
		manager:   manager.New(),
		registry:  sink.NewRegistry(),
		callbacks: make(map[int64]sink.CallbackFunc),
	}
}

// GetDownloader implements the get_downloader symbol: parse tasks_json,
// build a session.Config wired to the registry-backed callback sink (when
// useCallback is true) or a RemoteWebSocket/RemoteTcp sink (when
// useSocket/callbackURL select one), and register it with the manager
// without starting it.
func (s *Surface) GetDownloader(tasksJSON string, threadCount, chunkMB int, callback sink.CallbackFunc, useCallback bool, userAgent, callbackURL string, useSocket bool) int64 {
	tasks, err := parseTasks(tasksJSON)
	if err != nil {
		return -1
	}

	sk := s.resolveSink(tasks, callback, useCallback, callbackURL, useSocket)

	cfg, err := session.NewConfig(tasks, threadCount, chunkMB, userAgent, sk)
	if err != nil {
		return -1
	}

	id := s.manager.Create(cfg, false)
	if id != -1 && useCallback && callback != nil {
		s.mu.Lock()
		s.callbacks[id] = callback
		s.mu.Unlock()
	}
	return id
}

// StartDownload implements start_download: build the downloader exactly
// like GetDownloader, then start it immediately. isMultiple is accepted
// for ABI parity with start_multiple_downloads but has no distinct
// behavior; the two are synonyms all the way down to session.Session.
func (s *Surface) StartDownload(tasksJSON string, threadCount, chunkMB int, callback sink.CallbackFunc, useCallback bool, userAgent, callbackURL string, useSocket, isMultiple bool) int64 {
	id := s.GetDownloader(tasksJSON, threadCount, chunkMB, callback, useCallback, userAgent, callbackURL, useSocket)
	if id == -1 {
		return -1
	}
	if s.manager.Start(id) != 0 {
		return -1
	}
	return id
}

// StartDownloadID implements start_download_id.
func (s *Surface) StartDownloadID(handle int64) int { return s.manager.Start(handle) }

// StartMultipleDownloadsID implements start_multiple_downloads_id.
func (s *Surface) StartMultipleDownloadsID(handle int64) int { return s.manager.StartMultiple(handle) }

// PauseDownload implements pause_download.
func (s *Surface) PauseDownload(handle int64) int { return s.manager.Pause(handle) }

// ResumeDownload implements resume_download.
func (s *Surface) ResumeDownload(handle int64) int { return s.manager.Resume(handle) }

// StopDownload implements stop_download: stop the session and release its
// registered callback and per-task routes.
func (s *Surface) StopDownload(handle int64) int {
	rc := s.manager.Stop(handle)

	s.mu.Lock()
	delete(s.callbacks, handle)
	s.mu.Unlock()

	return rc
}

// resolveSink picks the sink variant from the caller's parameters: callback
// takes priority when useCallback is set, then a socket transport when
// useSocket/callbackURL select one, else Noop.
func (s *Surface) resolveSink(tasks []chunkdl.Task, callback sink.CallbackFunc, useCallback bool, callbackURL string, useSocket bool) sink.Sink {
	switch {
	case useCallback && callback != nil:
		for _, t := range tasks {
			s.registry.Register(t.ID, callback)
		}
		return s.registry
	case useSocket && callbackURL != "":
		return sink.NewWebSocket(callbackURL)
	case callbackURL != "":
		return sink.NewTcp(callbackURL)
	default:
		return sink.Noop{}
	}
}

func parseTasks(tasksJSON string) ([]chunkdl.Task, error) {
	var raw []taskJSON
	if err := json.Unmarshal([]byte(tasksJSON), &raw); err != nil {
		return nil, fmt.Errorf("parsing tasks_json: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("tasks_json must contain at least one task")
	}

	tasks := make([]chunkdl.Task, len(raw))
	for i, r := range raw {
		tasks[i] = chunkdl.Task{URL: r.URL, SavePath: r.SavePath, ShowName: r.ShowName, ID: r.ID}
	}
	return tasks, nil
}
