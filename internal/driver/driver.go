// Package driver defines the storage driver that the volume adapter wraps.
//
// A driver is single-client: callers must not issue concurrent operations.
// Handles returned by Open are owned by the caller and must be closed.
package driver

import "fmt"

// Mode selects how Open prepares a file.
type Mode int

const (
	// ModeRead opens an existing file or directory for reading.
	ModeRead Mode = iota
	// ModeWrite creates the file or truncates it to zero length.
	ModeWrite
	// ModeAppend creates the file if needed and positions writes at the end.
	ModeAppend
)

// String returns the single-letter mode used by the CLI and the logs.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeAppend:
		return "a"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts "r", "w" or "a" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "a":
		return ModeAppend, nil
	}
	return 0, fmt.Errorf("driver: unknown mode %q", s)
}

// Driver is the raw filesystem underneath a volume.
type Driver interface {
	Mount() error
	Unmount() error
	// Format erases the volume. The driver must be unmounted.
	Format() error

	Open(path string, mode Mode) (File, error)
	Remove(path string) error
	Rename(from, to string) error
	Exists(path string) bool
	Mkdir(path string) error
	Rmdir(path string) error

	TotalBytes() int64
	UsedBytes() int64
}

// File is an open file or directory handle.
//
// Write may store fewer bytes than len(p) without returning an error; callers
// retry the remainder. A zero count means the write failed.
type File interface {
	Name() string
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
	IsDir() bool
	Size() int64
	// OpenNextFile returns the next directory entry, or nil when the
	// directory is exhausted.
	OpenNextFile() (File, error)
}

// Replacer is implemented by drivers whose rename atomically replaces an
// existing destination.
type Replacer interface {
	Replace(from, to string) error
}
