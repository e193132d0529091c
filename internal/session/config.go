package session

import (
	"errors"
	"net/url"
	"path"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"tthsd/internal/chunkdl"
	"tthsd/internal/sink"
)

// ErrInvalidConfig is returned by NewConfig when tasks are missing or
// malformed.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the task list plus concurrency knobs and a sink, read far
// more often than written. Mutations take the write lock; every other
// access goes through Snapshot under a read lock.
type Config struct {
	mu sync.RWMutex

	tasks       []chunkdl.Task
	threadCount int
	chunkSizeMB int
	userAgent   string
	sink        sink.Sink
}

// Snapshot is a read-only copy of a Config at one point in time, safe to
// use without holding any lock.
type Snapshot struct {
	Tasks       []chunkdl.Task
	ThreadCount int
	ChunkSizeMB int
	UserAgent   string
	Sink        sink.Sink
}

// NewConfig validates tasks and applies the default thread_count,
// chunk_size_mb, and user_agent for any left unset.
func NewConfig(tasks []chunkdl.Task, threadCount, chunkSizeMB int, userAgent string, sk sink.Sink) (*Config, error) {
	if len(tasks) == 0 {
		return nil, ErrInvalidConfig
	}

	normalized := make([]chunkdl.Task, len(tasks))
	for i, t := range tasks {
		if t.URL == "" || t.SavePath == "" {
			return nil, ErrInvalidConfig
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.ShowName == "" {
			t.ShowName = defaultShowName(t.URL)
		}
		normalized[i] = t
	}

	if threadCount < 0 || chunkSizeMB < 0 {
		return nil, ErrInvalidConfig
	}
	if threadCount == 0 {
		threadCount = 2 * runtime.NumCPU()
	}
	if chunkSizeMB == 0 {
		chunkSizeMB = chunkdl.DefaultChunkSizeMB
	}
	if userAgent == "" {
		userAgent = chunkdl.DefaultUserAgent
	}
	if sk == nil {
		sk = sink.Noop{}
	}

	return &Config{
		tasks:       normalized,
		threadCount: threadCount,
		chunkSizeMB: chunkSizeMB,
		userAgent:   userAgent,
		sink:        sk,
	}, nil
}

// defaultShowName derives a show name from a URL's path basename, ignoring
// its query string.
func defaultShowName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return rawURL
	}
	return base
}

// Snapshot returns a self-consistent copy of the config.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tasks := make([]chunkdl.Task, len(c.tasks))
	copy(tasks, c.tasks)
	return Snapshot{
		Tasks:       tasks,
		ThreadCount: c.threadCount,
		ChunkSizeMB: c.chunkSizeMB,
		UserAgent:   c.userAgent,
		Sink:        c.sink,
	}
}

// SetSink replaces the session's sink endpoint; this is one of the few
// things Config mutates after construction.
func (c *Config) SetSink(sk sink.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sk == nil {
		sk = sink.Noop{}
	}
	c.sink = sk
}

// SetTasks replaces the task list.
func (c *Config) SetTasks(tasks []chunkdl.Task) error {
	if len(tasks) == 0 {
		return ErrInvalidConfig
	}
	normalized := make([]chunkdl.Task, len(tasks))
	for i, t := range tasks {
		if t.URL == "" || t.SavePath == "" {
			return ErrInvalidConfig
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.ShowName == "" {
			t.ShowName = defaultShowName(t.URL)
		}
		normalized[i] = t
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = normalized
	return nil
}
