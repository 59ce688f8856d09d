// Package fileops implements higher-level file operations (copy, safe save,
// move, touch, truncate, listing) on top of a mounted volume, using only the
// volume's open/read/write/close/rename/remove primitives.
//
// Every operation is synchronous and checks the mount state first. The engine
// does not lock: two operations racing on the same path, or on the staging
// files derived from it, are the caller's problem.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
	"github.com/starford/flashfs/internal/volume"
)

const (
	DefaultCopyChunk  = 1024
	DefaultReadChunk  = 512
	DefaultTempPrefix = "/tmp_"

	// Suffixes of the staging files written next to a target before it is
	// published.
	SaveSuffix     = ".tmp"
	TruncateSuffix = ".trunc"
)

// Engine runs file operations against a volume.
type Engine struct {
	vol       *volume.Volume
	logger    *slog.Logger
	copyChunk int
	readChunk int
	prefix    string
	observers []Observer
	now       func() time.Time
	seq       atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCopyChunk sets the buffer size used by Copy.
func WithCopyChunk(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.copyChunk = n
		}
	}
}

// WithReadChunk sets the buffer size used by Read and Truncate.
func WithReadChunk(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readChunk = n
		}
	}
}

// WithTempPrefix sets the prefix TempName uses when given an empty one.
func WithTempPrefix(p string) Option {
	return func(e *Engine) {
		if p != "" {
			e.prefix = p
		}
	}
}

// WithObserver registers fn to receive an Event after every successful
// mutating operation.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// New creates an engine over vol.
func New(vol *volume.Volume, opts ...Option) *Engine {
	e := &Engine{
		vol:       vol,
		copyChunk: DefaultCopyChunk,
		readChunk: DefaultReadChunk,
		prefix:    DefaultTempPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Volume returns the underlying volume.
func (e *Engine) Volume() *volume.Volume { return e.vol }

// Mounted reports whether the underlying volume is mounted.
func (e *Engine) Mounted() bool { return e.vol.Mounted() }

func (e *Engine) ready(op, p string) error {
	if !e.vol.Mounted() {
		return fmt.Errorf("fileops: %s %s: %w", op, p, apperr.ErrNotMounted)
	}
	return nil
}

func (e *Engine) fail(op, p string, err error) error {
	e.logger.Debug("fileops: "+op+" failed", slog.String("path", p), slog.String("error", err.Error()))
	return fmt.Errorf("fileops: %s %s: %w", op, p, err)
}

// handle owns an open driver file for the duration of one call. release is
// deferred right after acquisition, so every return path closes it; finish
// flushes and closes explicitly when the result of the close matters.
type handle struct {
	driver.File
	done bool
}

func (e *Engine) open(p string, mode driver.Mode) (*handle, error) {
	f, err := e.vol.Open(p, mode)
	if err != nil {
		return nil, err
	}
	return &handle{File: f}, nil
}

func (h *handle) release() {
	if h == nil || h.done {
		return
	}
	h.done = true
	_ = h.File.Close()
}

func (h *handle) finish() error {
	if h.done {
		return nil
	}
	h.done = true
	return errors.Join(h.File.Flush(), h.File.Close())
}

// discard removes a staging file left behind by a failed operation.
func (e *Engine) discard(p string) {
	if !e.vol.Exists(p) {
		return
	}
	if err := e.vol.Remove(p); err != nil {
		e.logger.Warn("fileops: staging file left behind", slog.String("path", p), slog.String("error", err.Error()))
	}
}
