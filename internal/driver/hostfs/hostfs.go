// Package hostfs implements driver.Driver on top of an afero filesystem, so a
// host directory (or an in-memory afero tree) can stand in for a flash volume.
package hostfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

var ErrNotMounted = errors.New("hostfs: not mounted")

// Driver adapts an afero.Fs to driver.Driver.
type Driver struct {
	fs       afero.Fs
	capacity int64
	mounted  bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithCapacity sets the size reported by TotalBytes.
func WithCapacity(n int64) Option {
	return func(d *Driver) { d.capacity = n }
}

// New wraps an arbitrary afero filesystem.
func New(fsys afero.Fs, opts ...Option) *Driver {
	d := &Driver{fs: fsys}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDir roots a driver at a host directory.
func NewDir(root string, opts ...Option) *Driver {
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), opts...)
}

// Fs returns the underlying filesystem.
func (d *Driver) Fs() afero.Fs { return d.fs }

func (d *Driver) Mount() error {
	if d.mounted {
		return nil
	}
	info, err := d.fs.Stat("/")
	if err != nil {
		return fmt.Errorf("hostfs: mount: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("hostfs: mount: root: %w", apperr.ErrNotDirectory)
	}
	d.mounted = true
	return nil
}

func (d *Driver) Unmount() error {
	d.mounted = false
	return nil
}

// Format removes every entry below the root.
func (d *Driver) Format() error {
	if d.mounted {
		return errors.New("hostfs: format: mounted")
	}
	if err := d.fs.MkdirAll("/", 0o755); err != nil {
		return fmt.Errorf("hostfs: format: %w", err)
	}
	entries, err := afero.ReadDir(d.fs, "/")
	if err != nil {
		return fmt.Errorf("hostfs: format: %w", err)
	}
	for _, e := range entries {
		if err := d.fs.RemoveAll("/" + e.Name()); err != nil {
			return fmt.Errorf("hostfs: format: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (d *Driver) TotalBytes() int64 {
	if !d.mounted {
		return 0
	}
	return d.capacity
}

func (d *Driver) UsedBytes() int64 {
	if !d.mounted {
		return 0
	}
	var used int64
	_ = afero.Walk(d.fs, "/", func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			used += info.Size()
		}
		return nil
	})
	return used
}

func mapErr(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("hostfs: %s %s: %w", op, p, apperr.ErrNotFound)
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("hostfs: %s %s: %w", op, p, apperr.ErrExists)
	}
	return fmt.Errorf("hostfs: %s %s: %w", op, p, err)
}

func (d *Driver) Exists(p string) bool {
	if !d.mounted {
		return false
	}
	ok, err := afero.Exists(d.fs, p)
	return err == nil && ok
}

func (d *Driver) Open(p string, mode driver.Mode) (driver.File, error) {
	if !d.mounted {
		return nil, ErrNotMounted
	}
	var (
		f   afero.File
		err error
	)
	switch mode {
	case driver.ModeRead:
		f, err = d.fs.Open(p)
	case driver.ModeWrite, driver.ModeAppend:
		if info, statErr := d.fs.Stat(p); statErr == nil && info.IsDir() {
			return nil, fmt.Errorf("hostfs: open %s for write: %w", p, apperr.ErrIsDirectory)
		}
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if mode == driver.ModeAppend {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err = d.fs.OpenFile(p, flag, 0o644)
	default:
		return nil, fmt.Errorf("hostfs: open %s: %w", p, apperr.ErrInvalidArgument)
	}
	if err != nil {
		return nil, mapErr("open", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, mapErr("stat", p, err)
	}
	return &file{drv: d, f: f, path: p, dir: info.IsDir()}, nil
}

func (d *Driver) Remove(p string) error {
	if !d.mounted {
		return ErrNotMounted
	}
	info, err := d.fs.Stat(p)
	if err != nil {
		return mapErr("remove", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("hostfs: remove %s: %w", p, apperr.ErrIsDirectory)
	}
	if err := d.fs.Remove(p); err != nil {
		return mapErr("remove", p, err)
	}
	return nil
}

// Rename refuses to overwrite, matching the flash drivers it stands in for.
// Use Replace for an overwriting rename.
func (d *Driver) Rename(from, to string) error {
	if !d.mounted {
		return ErrNotMounted
	}
	if d.Exists(to) {
		return fmt.Errorf("hostfs: rename %s -> %s: %w", from, to, apperr.ErrExists)
	}
	if err := d.fs.Rename(from, to); err != nil {
		return mapErr("rename", from, err)
	}
	return nil
}

// Replace renames from over to in a single step.
func (d *Driver) Replace(from, to string) error {
	if !d.mounted {
		return ErrNotMounted
	}
	if err := d.fs.Rename(from, to); err != nil {
		return mapErr("replace", from, err)
	}
	return nil
}

func (d *Driver) Mkdir(p string) error {
	if !d.mounted {
		return ErrNotMounted
	}
	if d.Exists(p) {
		return fmt.Errorf("hostfs: mkdir %s: %w", p, apperr.ErrExists)
	}
	if err := d.fs.Mkdir(p, 0o755); err != nil {
		return mapErr("mkdir", p, err)
	}
	return nil
}

func (d *Driver) Rmdir(p string) error {
	if !d.mounted {
		return ErrNotMounted
	}
	info, err := d.fs.Stat(p)
	if err != nil {
		return mapErr("rmdir", p, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("hostfs: rmdir %s: %w", p, apperr.ErrNotDirectory)
	}
	entries, err := afero.ReadDir(d.fs, p)
	if err != nil {
		return mapErr("rmdir", p, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("hostfs: rmdir %s: directory not empty", p)
	}
	if err := d.fs.Remove(p); err != nil {
		return mapErr("rmdir", p, err)
	}
	return nil
}

type file struct {
	drv  *Driver
	f    afero.File
	path string
	dir  bool

	names   []string
	listed  bool
	nextIdx int
}

func (f *file) Name() string {
	info, err := f.f.Stat()
	if err != nil {
		return f.f.Name()
	}
	return info.Name()
}

func (f *file) IsDir() bool { return f.dir }

func (f *file) Size() int64 {
	if f.dir {
		return 0
	}
	info, err := f.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Read reports end of file as a zero count with no error.
func (f *file) Read(p []byte) (int, error) {
	if f.dir {
		return 0, fmt.Errorf("hostfs: read %s: %w", f.path, apperr.ErrIsDirectory)
	}
	n, err := f.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (f *file) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

func (f *file) Flush() error {
	if f.dir {
		return nil
	}
	return f.f.Sync()
}

func (f *file) Close() error {
	return f.f.Close()
}

func (f *file) OpenNextFile() (driver.File, error) {
	if !f.dir {
		return nil, fmt.Errorf("hostfs: %s: %w", f.path, apperr.ErrNotDirectory)
	}
	if !f.listed {
		names, err := f.f.Readdirnames(-1)
		if err != nil {
			return nil, mapErr("readdir", f.path, err)
		}
		sort.Strings(names)
		f.names = names
		f.listed = true
	}
	if f.nextIdx >= len(f.names) {
		return nil, nil
	}
	name := f.names[f.nextIdx]
	f.nextIdx++
	child := f.path
	if child == "" || child[len(child)-1] != '/' {
		child += "/"
	}
	return f.drv.Open(child+name, driver.ModeRead)
}

var (
	_ driver.Driver   = (*Driver)(nil)
	_ driver.Replacer = (*Driver)(nil)
)
