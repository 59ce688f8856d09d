// Package volume wraps a storage driver with an explicit mount state and
// normalises its results into errors from apperr.
package volume

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

// State is the mount state of a Volume.
type State int

const (
	StateUnmounted State = iota
	StateMounted
)

func (s State) String() string {
	if s == StateMounted {
		return "mounted"
	}
	return "unmounted"
}

// Volume is the adapter in front of a driver. It is not safe for concurrent
// use; callers that share one must serialise access.
type Volume struct {
	drv    driver.Driver
	state  State
	logger *slog.Logger
}

// Option configures a Volume.
type Option func(*Volume)

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(v *Volume) { v.logger = l }
}

// New creates an unmounted volume over drv.
func New(drv driver.Driver, opts ...Option) *Volume {
	v := &Volume{drv: drv}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return v
}

// State returns the current mount state.
func (v *Volume) State() State { return v.state }

// Mounted reports whether operations are currently allowed.
func (v *Volume) Mounted() bool { return v.state == StateMounted }

// Driver returns the wrapped driver.
func (v *Volume) Driver() driver.Driver { return v.drv }

// Mount attaches the volume. If the first attempt fails and autoFormat is
// set, the device is formatted and mounted once more.
func (v *Volume) Mount(autoFormat bool) error {
	if v.Mounted() {
		return nil
	}
	err := v.drv.Mount()
	if err != nil && autoFormat {
		v.logger.Warn("volume: mount failed, formatting", slog.String("error", err.Error()))
		if ferr := v.drv.Format(); ferr != nil {
			v.logger.Warn("volume: format failed", slog.String("error", ferr.Error()))
		}
		err = v.drv.Mount()
	}
	if err != nil {
		return fmt.Errorf("volume: mount: %w", err)
	}
	v.state = StateMounted
	v.logger.Debug("volume: mounted")
	return nil
}

// Unmount detaches the volume. It is a no-op when already unmounted.
func (v *Volume) Unmount() {
	if !v.Mounted() {
		return
	}
	if err := v.drv.Unmount(); err != nil {
		v.logger.Warn("volume: unmount", slog.String("error", err.Error()))
	}
	v.state = StateUnmounted
	v.logger.Debug("volume: unmounted")
}

// Format erases a mounted volume and mounts it again. It succeeds only when
// both the format and the remount do; the state reflects the remount.
func (v *Volume) Format() error {
	if !v.Mounted() {
		return fmt.Errorf("volume: format: %w", apperr.ErrNotMounted)
	}
	_ = v.drv.Unmount()
	v.state = StateUnmounted

	ferr := v.drv.Format()
	merr := v.drv.Mount()
	if merr == nil {
		v.state = StateMounted
	}
	switch {
	case ferr != nil:
		return fmt.Errorf("volume: format: %w", ferr)
	case merr != nil:
		return fmt.Errorf("volume: format: remount: %w", merr)
	}
	v.logger.Info("volume: formatted")
	return nil
}

func (v *Volume) notMounted(op, p string) error {
	return fmt.Errorf("volume: %s %s: %w", op, p, apperr.ErrNotMounted)
}

// Open opens path in the given mode.
func (v *Volume) Open(p string, mode driver.Mode) (driver.File, error) {
	if !v.Mounted() {
		return nil, v.notMounted("open", p)
	}
	f, err := v.drv.Open(p, mode)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("volume: open %s: %w", p, apperr.ErrNotFound)
	}
	return f, nil
}

func (v *Volume) Remove(p string) error {
	if !v.Mounted() {
		return v.notMounted("remove", p)
	}
	return v.drv.Remove(p)
}

func (v *Volume) Rename(from, to string) error {
	if !v.Mounted() {
		return v.notMounted("rename", from)
	}
	return v.drv.Rename(from, to)
}

// Exists is false whenever the volume is unmounted.
func (v *Volume) Exists(p string) bool {
	if !v.Mounted() {
		return false
	}
	return v.drv.Exists(p)
}

func (v *Volume) Mkdir(p string) error {
	if !v.Mounted() {
		return v.notMounted("mkdir", p)
	}
	return v.drv.Mkdir(p)
}

func (v *Volume) Rmdir(p string) error {
	if !v.Mounted() {
		return v.notMounted("rmdir", p)
	}
	return v.drv.Rmdir(p)
}

// SupportsReplace reports whether the driver can rename over an existing
// destination atomically.
func (v *Volume) SupportsReplace() bool {
	_, ok := v.drv.(driver.Replacer)
	return ok
}

// Replace renames from over to using the driver's atomic replace.
func (v *Volume) Replace(from, to string) error {
	if !v.Mounted() {
		return v.notMounted("replace", from)
	}
	r, ok := v.drv.(driver.Replacer)
	if !ok {
		return fmt.Errorf("volume: replace: driver cannot replace atomically: %w", apperr.ErrInvalidArgument)
	}
	return r.Replace(from, to)
}
