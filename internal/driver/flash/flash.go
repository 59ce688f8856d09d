// Package flash implements driver.Driver as an in-memory flash volume.
//
// The simulator keeps a flat map of cleaned absolute paths to nodes, charges
// space in whole blocks, and refuses to grow past its capacity. Like the
// small flash filesystems it stands in for, Rename never overwrites an
// existing destination and the device is not safe for concurrent use.
package flash

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

const (
	DefaultCapacity  = 1 << 20
	DefaultBlockSize = 4096
)

var (
	ErrNotMounted   = errors.New("flash: not mounted")
	ErrMounted      = errors.New("flash: mounted")
	ErrUnformatted  = errors.New("flash: no filesystem on device")
	ErrNoSpace      = errors.New("flash: no space left on device")
	ErrNotEmpty     = errors.New("flash: directory not empty")
	ErrTooManyFiles = errors.New("flash: too many open files")
)

type node struct {
	dir  bool
	data []byte
}

// Device is a simulated flash volume.
type Device struct {
	capacity  int64
	blockSize int64
	maxOpen   int

	formatted bool
	mounted   bool
	nodes     map[string]*node
	open      int

	faults Faults
}

// Option configures a Device.
type Option func(*Device)

// WithCapacity sets the device size in bytes.
func WithCapacity(n int64) Option {
	return func(d *Device) { d.capacity = n }
}

// WithBlockSize sets the allocation unit in bytes.
func WithBlockSize(n int64) Option {
	return func(d *Device) { d.blockSize = n }
}

// WithMaxOpen bounds the number of simultaneously open handles. Zero means
// unbounded.
func WithMaxOpen(n int) Option {
	return func(d *Device) { d.maxOpen = n }
}

// Unformatted makes the device start blank, so Mount fails until Format.
func Unformatted() Option {
	return func(d *Device) { d.formatted = false }
}

// New creates a formatted, unmounted device.
func New(opts ...Option) *Device {
	d := &Device{
		capacity:  DefaultCapacity,
		blockSize: DefaultBlockSize,
		formatted: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.blockSize <= 0 {
		d.blockSize = DefaultBlockSize
	}
	d.nodes = map[string]*node{"/": {dir: true}}
	return d
}

// SetFaults replaces the active fault plan.
func (d *Device) SetFaults(f Faults) { d.faults = f }

// OpenHandles reports how many handles are currently open.
func (d *Device) OpenHandles() int { return d.open }

// Corrupt discards the filesystem so the next Mount fails.
func (d *Device) Corrupt() {
	d.formatted = false
	d.nodes = map[string]*node{"/": {dir: true}}
}

func (d *Device) Mount() error {
	if d.mounted {
		return nil
	}
	if d.faults.Mount != nil && d.faults.Mount() {
		return fmt.Errorf("flash: mount: injected fault")
	}
	if !d.formatted {
		return ErrUnformatted
	}
	d.mounted = true
	return nil
}

func (d *Device) Unmount() error {
	d.mounted = false
	d.open = 0
	return nil
}

func (d *Device) Format() error {
	if d.mounted {
		return ErrMounted
	}
	if d.faults.Format != nil && d.faults.Format() {
		return fmt.Errorf("flash: format: injected fault")
	}
	d.nodes = map[string]*node{"/": {dir: true}}
	d.formatted = true
	return nil
}

func (d *Device) TotalBytes() int64 {
	if !d.mounted {
		return 0
	}
	return d.capacity
}

func (d *Device) UsedBytes() int64 {
	if !d.mounted {
		return 0
	}
	var used int64
	for p, n := range d.nodes {
		if p == "/" {
			continue
		}
		used += d.footprint(n)
	}
	return used
}

// footprint is the space a node occupies: one metadata block for a
// directory or empty file, otherwise its data rounded up to whole blocks.
func (d *Device) footprint(n *node) int64 {
	if n.dir || len(n.data) == 0 {
		return d.blockSize
	}
	blocks := (int64(len(n.data)) + d.blockSize - 1) / d.blockSize
	return blocks * d.blockSize
}

func clean(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("flash: path must be absolute: %q: %w", p, apperr.ErrInvalidArgument)
	}
	return path.Clean(p), nil
}

func (d *Device) lookup(p string) (string, *node, error) {
	if !d.mounted {
		return "", nil, ErrNotMounted
	}
	cp, err := clean(p)
	if err != nil {
		return "", nil, err
	}
	return cp, d.nodes[cp], nil
}

func (d *Device) parentIsDir(cp string) bool {
	parent, ok := d.nodes[path.Dir(cp)]
	return ok && parent.dir
}

func (d *Device) Exists(p string) bool {
	_, n, err := d.lookup(p)
	return err == nil && n != nil
}

func (d *Device) Open(p string, mode driver.Mode) (driver.File, error) {
	cp, n, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	if d.maxOpen > 0 && d.open >= d.maxOpen {
		return nil, ErrTooManyFiles
	}

	switch mode {
	case driver.ModeRead:
		if n == nil {
			return nil, fmt.Errorf("flash: open %s: %w", cp, apperr.ErrNotFound)
		}
	case driver.ModeWrite, driver.ModeAppend:
		if n != nil && n.dir {
			return nil, fmt.Errorf("flash: open %s for write: %w", cp, apperr.ErrIsDirectory)
		}
		if n == nil {
			if !d.parentIsDir(cp) {
				return nil, fmt.Errorf("flash: open %s: parent: %w", cp, apperr.ErrNotFound)
			}
			n = &node{}
			if d.UsedBytes()+d.footprint(n) > d.capacity {
				return nil, fmt.Errorf("flash: create %s: %w", cp, ErrNoSpace)
			}
			d.nodes[cp] = n
		} else if mode == driver.ModeWrite {
			n.data = nil
		}
	default:
		return nil, fmt.Errorf("flash: open %s: %w", cp, apperr.ErrInvalidArgument)
	}

	d.open++
	h := &handle{dev: d, path: cp, node: n, mode: mode}
	if mode == driver.ModeAppend {
		h.off = int64(len(n.data))
	}
	if n.dir {
		h.children = d.children(cp)
	}
	return h, nil
}

// children returns the sorted direct descendants of dir.
func (d *Device) children(dir string) []string {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}
	var out []string
	for p := range d.nodes {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.Contains(p[len(prefix):], "/") {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d *Device) Remove(p string) error {
	cp, n, err := d.lookup(p)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("flash: remove %s: %w", cp, apperr.ErrNotFound)
	}
	if n.dir {
		return fmt.Errorf("flash: remove %s: %w", cp, apperr.ErrIsDirectory)
	}
	if d.faults.Remove != nil && d.faults.Remove(cp) {
		return fmt.Errorf("flash: remove %s: injected fault", cp)
	}
	delete(d.nodes, cp)
	return nil
}

func (d *Device) Rename(from, to string) error {
	cf, n, err := d.lookup(from)
	if err != nil {
		return err
	}
	ct, err := clean(to)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("flash: rename %s: %w", cf, apperr.ErrNotFound)
	}
	if _, ok := d.nodes[ct]; ok {
		return fmt.Errorf("flash: rename %s -> %s: %w", cf, ct, apperr.ErrExists)
	}
	if n.dir && strings.HasPrefix(ct, cf+"/") {
		return fmt.Errorf("flash: rename %s -> %s: into own subtree: %w", cf, ct, apperr.ErrInvalidArgument)
	}
	if !d.parentIsDir(ct) {
		return fmt.Errorf("flash: rename %s -> %s: parent: %w", cf, ct, apperr.ErrNotFound)
	}
	if d.faults.Rename != nil && d.faults.Rename(cf, ct) {
		return fmt.Errorf("flash: rename %s -> %s: injected fault", cf, ct)
	}

	if n.dir {
		prefix := cf + "/"
		var moved []string
		for p := range d.nodes {
			if strings.HasPrefix(p, prefix) {
				moved = append(moved, p)
			}
		}
		for _, p := range moved {
			child := d.nodes[p]
			delete(d.nodes, p)
			d.nodes[ct+"/"+p[len(prefix):]] = child
		}
	}
	delete(d.nodes, cf)
	d.nodes[ct] = n
	return nil
}

func (d *Device) Mkdir(p string) error {
	cp, n, err := d.lookup(p)
	if err != nil {
		return err
	}
	if n != nil {
		return fmt.Errorf("flash: mkdir %s: %w", cp, apperr.ErrExists)
	}
	if !d.parentIsDir(cp) {
		return fmt.Errorf("flash: mkdir %s: parent: %w", cp, apperr.ErrNotFound)
	}
	dir := &node{dir: true}
	if d.UsedBytes()+d.footprint(dir) > d.capacity {
		return fmt.Errorf("flash: mkdir %s: %w", cp, ErrNoSpace)
	}
	d.nodes[cp] = dir
	return nil
}

func (d *Device) Rmdir(p string) error {
	cp, n, err := d.lookup(p)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("flash: rmdir %s: %w", cp, apperr.ErrNotFound)
	}
	if !n.dir {
		return fmt.Errorf("flash: rmdir %s: %w", cp, apperr.ErrNotDirectory)
	}
	if cp == "/" || len(d.children(cp)) > 0 {
		return fmt.Errorf("flash: rmdir %s: %w", cp, ErrNotEmpty)
	}
	delete(d.nodes, cp)
	return nil
}

var _ driver.Driver = (*Device)(nil)
