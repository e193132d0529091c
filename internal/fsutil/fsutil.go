// Package fsutil provides the small filesystem helpers the chunked download
// engine needs: creating the destination file (with parent directories) and
// pre-allocating its size before concurrent writers seek into it.
package fsutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// fat32MaxFileSize is the largest file a FAT32 volume can hold (2^32 - 1
// bytes). A pre-allocation failure above this size is treated as the
// filesystem rejecting the file outright rather than a transient error.
const fat32MaxFileSize = 1<<32 - 1

// FilesystemTooSmallError reports that a file could not be pre-allocated
// because it exceeds what the destination filesystem can hold.
type FilesystemTooSmallError struct {
	Bytes int64
}

func (e *FilesystemTooSmallError) Error() string {
	return fmt.Sprintf("cannot allocate %s on this filesystem (likely a 4 GiB FAT32-style limit)", humanizeBytes(e.Bytes))
}

// Is lets errors.Is(err, ErrFilesystemTooSmall) match any instance.
func (e *FilesystemTooSmallError) Is(target error) bool {
	return target == ErrFilesystemTooSmall
}

// ErrFilesystemTooSmall is the sentinel matched by FilesystemTooSmallError.Is.
var ErrFilesystemTooSmall = fmt.Errorf("filesystem too small")

// humanizeBytes renders a byte count in decimal (SI) units. Decimal, rather
// than binary, units are used here because this is the wording a user
// reading a disk-space error expects — it matches how filesystem tools
// report capacity.
func humanizeBytes(size int64) string {
	const unit = 1000.0
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(size)
	i := 0
	for f >= unit && i < len(units)-1 {
		f /= unit
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", size, units[i])
	}
	return fmt.Sprintf("%.2f %s", f, units[i])
}

// EnsureFile opens path for read/write, creating it and any missing parent
// directories if absent.
func EnsureFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}

// TruncateFunc matches os.File.Truncate's signature; Preallocate takes one
// so tests can substitute a failing truncate without a real multi-gigabyte
// file.
type TruncateFunc func(size int64) error

// Preallocate reserves contentLength bytes via truncate. If truncate fails
// and contentLength exceeds the FAT32 4 GiB-1 limit, that is a hard error;
// otherwise it is logged and ignored, since concurrent WriteAt calls don't
// actually require pre-allocation to be correct, only to avoid
// fragmentation.
func Preallocate(truncate TruncateFunc, path string, contentLength int64) error {
	if err := truncate(contentLength); err != nil {
		if contentLength > fat32MaxFileSize {
			return &FilesystemTooSmallError{Bytes: contentLength}
		}
		slog.Warn("fsutil: preallocation failed, continuing without it", "path", path, "size", contentLength, "err", err)
	}
	return nil
}
