package fileservice

import (
	"log/slog"

	"github.com/starford/flashfs/internal/catalog"
	"github.com/starford/flashfs/internal/checksum"
	"github.com/starford/flashfs/internal/fileops"
)

// The methods below implement watcher.Handler. Changes made through the
// engine reach the catalog first, so the watcher's echo of them matches the
// stored checksum and is dropped here.

// FileChanged records an out-of-band write to path.
func (s *Service) FileChanged(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eng.Exists(path) || s.eng.IsDir(path) {
		return
	}
	if s.db == nil {
		s.publish(fileops.Event{Kind: fileops.EventWritten, Path: path})
		return
	}
	data, err := s.eng.Read(path)
	if err != nil {
		s.logger.Warn("fileservice: read changed file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	cs := checksum.Sum(data)
	if old, _ := s.db.GetChecksum(path); old == cs {
		return
	}
	if err := s.db.Upsert(catalog.Row{Path: path, Size: int64(len(data)), Checksum: cs}); err != nil {
		s.logger.Warn("fileservice: catalog upsert", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	s.publish(fileops.Event{Kind: fileops.EventWritten, Path: path})
}

// FileRemoved records an out-of-band removal of path.
func (s *Service) FileRemoved(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng.Exists(path) {
		return
	}
	if s.db != nil {
		if _, ok, _ := s.db.Get(path); !ok {
			return
		}
		if err := s.db.Delete(path); err != nil {
			s.logger.Warn("fileservice: catalog delete", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
	}
	s.publish(fileops.Event{Kind: fileops.EventRemoved, Path: path})
}

// Reconcile brings the catalog back in line with the volume after changes
// the watcher could not attribute to a single path.
func (s *Service) Reconcile() {
	if s.db == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, err := catalog.Verify(s.db, s.eng)
	if err != nil {
		s.logger.Warn("fileservice: reconcile", slog.String("error", err.Error()))
		return
	}
	for _, p := range append(rep.Added, rep.Changed...) {
		if err := catalog.Refresh(s.db, s.eng, p); err != nil {
			s.logger.Warn("fileservice: reconcile refresh", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		s.publish(fileops.Event{Kind: fileops.EventWritten, Path: p})
	}
	for _, p := range rep.Missing {
		if err := s.db.Delete(p); err != nil {
			s.logger.Warn("fileservice: reconcile delete", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		s.publish(fileops.Event{Kind: fileops.EventRemoved, Path: p})
	}
}

func (s *Service) publish(ev fileops.Event) {
	if s.pub != nil {
		s.pub.PublishFileEvent(ev)
	}
}
