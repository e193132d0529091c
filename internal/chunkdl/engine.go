// Package chunkdl is the HTTP chunked download engine: given one task, it
// probes the remote content length, pre-allocates the destination file,
// partitions the byte range into chunks, and runs a bounded pool of
// concurrent ranged GETs that write directly into disjoint offsets of the
// shared file.
package chunkdl

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tthsd/internal/fsutil"
	"tthsd/internal/monitor"
)

const (
	// DefaultUserAgent is the fixed Chrome-like UA used when a task doesn't
	// override it.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// DefaultChunkSizeMB is the chunk size fallback when a task doesn't set one.
	DefaultChunkSizeMB = 10

	progressFlushBytes = 512 * 1024

	connectTimeout     = 15 * time.Second
	stallTimeout       = 30 * time.Second
	stallCheckInterval = 5 * time.Second
	poolIdleTimeout    = 90 * time.Second
	poolKeepAlive      = 30 * time.Second

	readBufferSize = 32 * 1024
)

// Task is one remote resource to fetch.
type Task struct {
	URL      string
	SavePath string
	ShowName string
	ID       string
}

// Options configures one Run call. Zero values fall back to sensible
// defaults.
type Options struct {
	ThreadCount int
	ChunkSizeMB int
	UserAgent   string

	// Preallocate lets tests substitute a failing truncate to exercise the
	// FilesystemTooSmall path without writing a real multi-gigabyte file.
	// Defaults to fsutil.Preallocate.
	Preallocate func(truncate fsutil.TruncateFunc, path string, contentLength int64) error

	// StallTimeout and StallCheckInterval default to 30s/5s and only need
	// overriding in tests that simulate a stall without an actual
	// 30-second wait.
	StallTimeout       time.Duration
	StallCheckInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.ThreadCount <= 0 {
		o.ThreadCount = 2 * runtime.NumCPU()
	}
	if o.ChunkSizeMB <= 0 {
		o.ChunkSizeMB = DefaultChunkSizeMB
	}
	if o.Preallocate == nil {
		o.Preallocate = fsutil.Preallocate
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = stallTimeout
	}
	if o.StallCheckInterval <= 0 {
		o.StallCheckInterval = stallCheckInterval
	}
}

// Result summarizes a finished run for the session layer's endOne/err
// events.
type Result struct {
	ContentLength int64
	BytesWritten  int64
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: poolKeepAlive,
			}).DialContext,
			ResponseHeaderTimeout: connectTimeout,
			TLSHandshakeTimeout:   connectTimeout,
			IdleConnTimeout:       poolIdleTimeout,
		},
	}
}

// Run fetches task according to opts, reporting byte deltas to mon (which
// may be nil in tests that don't care about monitor wiring). It moves
// through probing the remote size, allocating the destination file, and
// fetching chunks concurrently, ending in success, a classified error, or
// cancellation.
func Run(ctx context.Context, task Task, opts Options, mon *monitor.Monitor) (Result, error) {
	opts.applyDefaults()

	if err := ctx.Err(); err != nil {
		return Result{}, ErrCancelled
	}

	contentLength, err := Probe(ctx, task.URL, opts.UserAgent)
	if err != nil {
		return Result{}, err
	}

	f, err := fsutil.EnsureFile(task.SavePath)
	if err != nil {
		return Result{}, &NetworkError{Detail: "opening " + task.SavePath, Err: err}
	}
	defer f.Close()

	if err := opts.Preallocate(f.Truncate, task.SavePath, contentLength); err != nil {
		return Result{}, err
	}

	chunks := Partition(contentLength, opts.ThreadCount, int64(opts.ChunkSizeMB)<<20)
	if mon != nil {
		mon.SetTotalBytes(contentLength)
	}

	client := newHTTPClient()
	var totalWritten int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.ThreadCount)

	for _, c := range chunks {
		c := c
		g.Go(func() error {
			return fetchChunk(gctx, client, task.URL, opts.UserAgent, c, f, mon, &totalWritten, opts.StallTimeout, opts.StallCheckInterval)
		})
	}

	runErr := g.Wait()
	written := atomic.LoadInt64(&totalWritten)

	if runErr != nil {
		if ctx.Err() != nil {
			return Result{ContentLength: contentLength, BytesWritten: written}, ErrCancelled
		}
		return Result{ContentLength: contentLength, BytesWritten: written}, runErr
	}

	if written != contentLength {
		return Result{ContentLength: contentLength, BytesWritten: written},
			&IncompleteError{Got: written, Want: contentLength}
	}

	return Result{ContentLength: contentLength, BytesWritten: written}, nil
}

// fetchChunk downloads one chunk and writes it at its absolute file offset
// via WriteAt, which is safe for concurrent use across chunks since it
// doesn't touch the file's shared seek position.
func fetchChunk(ctx context.Context, client *http.Client, url, userAgent string, c Chunk, f *os.File, mon *monitor.Monitor, totalWritten *int64, stallAfter, stallCheckEvery time.Duration) error {
	chunkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastRead atomic.Int64
	lastRead.Store(time.Now().UnixNano())
	var stalled atomic.Bool
	go watchStall(chunkCtx, cancel, &lastRead, &stalled, stallAfter, stallCheckEvery)

	req, err := http.NewRequestWithContext(chunkCtx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{Detail: "building chunk request", Err: err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", c.Start, c.End))
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return chunkErr(ctx, &stalled, "fetching chunk", err)
	}
	defer resp.Body.Close()

	// Only 206 proves the server honored Range; a 200 would carry the whole
	// body and corrupt this chunk's offsets.
	if resp.StatusCode != http.StatusPartialContent {
		return &BadStatusError{Code: resp.StatusCode}
	}

	buf := make([]byte, readBufferSize)
	offset := c.Start
	var pending int64

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			lastRead.Store(time.Now().UnixNano())

			if _, werr := f.WriteAt(buf[:n], offset); werr != nil {
				return &NetworkError{Detail: "writing chunk", Err: werr}
			}
			offset += int64(n)
			pending += int64(n)
			atomic.AddInt64(totalWritten, int64(n))

			if pending >= progressFlushBytes {
				if mon != nil {
					mon.AddBytes(pending)
				}
				pending = 0
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if pending > 0 && mon != nil {
				mon.AddBytes(pending)
			}
			return chunkErr(ctx, &stalled, "reading chunk body", readErr)
		}
	}

	if pending > 0 && mon != nil {
		mon.AddBytes(pending)
	}
	return nil
}

// chunkErr classifies an error surfaced from an operation on chunkCtx:
// stall watchdog firing takes priority, then the caller's own cancellation,
// else it's a genuine network error.
func chunkErr(parentCtx context.Context, stalled *atomic.Bool, detail string, err error) error {
	if stalled.Load() {
		return ErrStalled
	}
	if parentCtx.Err() != nil {
		return ErrCancelled
	}
	return &NetworkError{Detail: detail, Err: err}
}

// watchStall cancels chunkCancel once stallTimeout elapses without a byte
// read.
func watchStall(ctx context.Context, chunkCancel context.CancelFunc, lastRead *atomic.Int64, stalled *atomic.Bool, stallAfter, checkEvery time.Duration) {
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, lastRead.Load())) > stallAfter {
				stalled.Store(true)
				chunkCancel()
				return
			}
		}
	}
}
