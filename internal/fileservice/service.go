// Package fileservice is the single entry point transports use to reach the
// volume. It serialises engine calls, checks content preconditions, and keeps
// the catalog and event subscribers in step with every mutation.
package fileservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/catalog"
	"github.com/starford/flashfs/internal/checksum"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/volume"
)

// FileDetail is a file's content together with its metadata.
type FileDetail struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Content  []byte `json:"-"`
}

// FileInfo describes a file after a mutation.
type FileInfo struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Publisher receives file events for fan-out to clients.
type Publisher interface {
	PublishFileEvent(ev fileops.Event)
}

// Service coordinates engine, catalog and event publishing.
//
// The underlying driver is single-client, so every method holds one mutex
// for the duration of the engine call, observers included.
type Service struct {
	mu     sync.Mutex
	eng    *fileops.Engine
	db     *catalog.DB
	pub    Publisher
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service over eng. db may be nil, in which case nothing is
// catalogued and Verify is unavailable.
func New(eng *fileops.Engine, db *catalog.DB, opts ...Option) *Service {
	s := &Service{eng: eng, db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if db != nil {
		eng.Subscribe(catalog.Observer(db, eng, s.logger))
	}
	if s.pub != nil {
		eng.Subscribe(s.pub.PublishFileEvent)
	}
	return s
}

// Engine returns the underlying engine. Callers must not use it concurrently
// with the service.
func (s *Service) Engine() *fileops.Engine { return s.eng }

// Read returns the content of path.
func (s *Service) Read(_ context.Context, path string) (*FileDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.eng.Read(path)
	if err != nil {
		return nil, err
	}
	return &FileDetail{
		Path:     path,
		Size:     int64(len(data)),
		Checksum: checksum.Sum(data),
		Content:  data,
	}, nil
}

// Save publishes data at path with SafeSave. A non-empty ifMatch must equal
// the checksum of the current content, otherwise apperr.ErrConflict is
// returned and nothing is written.
func (s *Service) Save(_ context.Context, path string, data []byte, ifMatch string) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ifMatch != "" {
		current, err := s.eng.Read(path)
		if err != nil {
			return nil, err
		}
		if !checksum.Match(current, ifMatch) {
			return nil, fmt.Errorf("fileservice: save %s: %w", path, apperr.ErrConflict)
		}
	}
	if err := s.eng.SafeSave(path, data); err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Size: int64(len(data)), Checksum: checksum.Sum(data)}, nil
}

// Append appends data to path, creating it when missing.
func (s *Service) Append(_ context.Context, path string, data []byte) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eng.Append(path, data); err != nil {
		return nil, err
	}
	return s.stat(path)
}

// Truncate shrinks path to size bytes.
func (s *Service) Truncate(_ context.Context, path string, size int64) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eng.Truncate(path, size); err != nil {
		return nil, err
	}
	return s.stat(path)
}

// Touch creates path if missing without changing existing content.
func (s *Service) Touch(_ context.Context, path string) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eng.Touch(path); err != nil {
		return nil, err
	}
	return s.stat(path)
}

// Copy duplicates from onto to.
func (s *Service) Copy(_ context.Context, from, to string) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eng.Copy(from, to); err != nil {
		return nil, err
	}
	return s.stat(to)
}

// Move renames from to to, replacing an existing destination.
func (s *Service) Move(_ context.Context, from, to string) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eng.Move(from, to); err != nil {
		return nil, err
	}
	if s.eng.IsDir(to) {
		return &FileInfo{Path: to}, nil
	}
	return s.stat(to)
}

// Remove deletes a file.
func (s *Service) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Remove(path)
}

// Mkdir creates a directory.
func (s *Service) Mkdir(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Mkdir(path)
}

// Rmdir removes an empty directory.
func (s *Service) Rmdir(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Rmdir(path)
}

// List returns the direct children of dir.
func (s *Service) List(_ context.Context, dir string) ([]fileops.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.eng.Collect(dir, 1)
	return nonNilSlice(entries), err
}

// Tree returns every entry below root, at most depth levels deep.
func (s *Service) Tree(_ context.Context, root string, depth int) ([]fileops.Entry, error) {
	if depth <= 0 {
		depth = fileops.DefaultDepth
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.eng.Collect(root, depth)
	return nonNilSlice(entries), err
}

// Space reports capacity figures for the volume.
func (s *Service) Space(_ context.Context) volume.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Volume().Space()
}

// Format wipes the volume.
func (s *Service) Format(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Format()
}

// Sync rebuilds the catalog from the volume.
func (s *Service) Sync(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("fileservice: sync: no catalog: %w", apperr.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.Sync(s.db, s.eng, s.logger)
}

// Verify compares the volume against the catalog.
func (s *Service) Verify(_ context.Context) (catalog.Report, error) {
	if s.db == nil {
		return catalog.Report{}, fmt.Errorf("fileservice: verify: no catalog: %w", apperr.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.Verify(s.db, s.eng)
}

// stat must be called with s.mu held.
func (s *Service) stat(path string) (*FileInfo, error) {
	data, err := s.eng.Read(path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Size: int64(len(data)), Checksum: checksum.Sum(data)}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
