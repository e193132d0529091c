// Package config loads a session.Config from a YAML file: the on-disk
// task list, concurrency knobs, and sink selection that cmd/tthsd's
// download subcommand reads at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tthsd/internal/chunkdl"
	"tthsd/internal/session"
	"tthsd/internal/sink"
)

// TaskFile is one entry of the YAML "tasks" list.
type TaskFile struct {
	URL      string `yaml:"url"`
	SavePath string `yaml:"save_path"`
	ShowName string `yaml:"show_name"`
	ID       string `yaml:"id"`
}

// SinkFile selects one of the sink variants by name.
type SinkFile struct {
	Type string `yaml:"type"` // "none" (default), "callback", "websocket", "tcp"
	URL  string `yaml:"url"`
}

// File is the on-disk shape of a download configuration.
type File struct {
	ThreadCount int        `yaml:"thread_count"`
	ChunkSizeMB int        `yaml:"chunk_size_mb"`
	UserAgent   string     `yaml:"user_agent"`
	Sink        SinkFile   `yaml:"sink"`
	Tasks       []TaskFile `yaml:"tasks"`
}

// Load parses a YAML file at path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &f, nil
}

// SessionConfig builds a session.Config from the file, substituting
// fallback sink in-process callback fn when the file requests a
// callback-style sink (cmd/tthsd wires its progress UI this way).
func (f *File) SessionConfig(callback sink.CallbackFunc) (*session.Config, error) {
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("config has no tasks")
	}

	tasks := make([]chunkdl.Task, len(f.Tasks))
	for i, t := range f.Tasks {
		tasks[i] = chunkdl.Task{URL: t.URL, SavePath: t.SavePath, ShowName: t.ShowName, ID: t.ID}
	}

	sk, err := f.resolveSink(callback)
	if err != nil {
		return nil, err
	}

	return session.NewConfig(tasks, f.ThreadCount, f.ChunkSizeMB, f.UserAgent, sk)
}

func (f *File) resolveSink(callback sink.CallbackFunc) (sink.Sink, error) {
	switch f.Sink.Type {
	case "", "none":
		if callback != nil {
			return sink.NewCallback(callback), nil
		}
		return sink.Noop{}, nil
	case "callback":
		return sink.NewCallback(callback), nil
	case "websocket":
		if f.Sink.URL == "" {
			return nil, fmt.Errorf("sink.type websocket requires sink.url")
		}
		return sink.NewWebSocket(f.Sink.URL), nil
	case "tcp":
		if f.Sink.URL == "" {
			return nil, fmt.Errorf("sink.type tcp requires sink.url")
		}
		return sink.NewTcp(f.Sink.URL), nil
	default:
		return nil, fmt.Errorf("unknown sink.type %q", f.Sink.Type)
	}
}
