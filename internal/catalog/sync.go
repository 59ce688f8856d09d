package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/flashfs/internal/checksum"
	"github.com/starford/flashfs/internal/fileops"
)

// treeDepth bounds catalog walks. Flash volumes are shallow; anything deeper
// is not catalogued.
const treeDepth = 64

// Sync walks the volume and brings the catalog up to date:
//   - new/changed files are hashed and upserted
//   - files no longer on the volume are deleted from the catalog
func Sync(db *DB, e *fileops.Engine, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(checksums))
	for entry, err := range e.Walk("/", treeDepth) {
		if err != nil {
			return fmt.Errorf("catalog: sync: %w", err)
		}
		if entry.IsDir {
			continue
		}
		seen[entry.Path] = struct{}{}

		data, err := e.Read(entry.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
			continue
		}
		cs := checksum.Sum(data)
		if checksums[entry.Path] == cs {
			continue
		}
		if err := db.Upsert(Row{Path: entry.Path, Size: int64(len(data)), Checksum: cs}); err != nil {
			logger.Warn("sync: upsert failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: catalogued", slog.String("path", entry.Path))
		}
	}

	for p := range checksums {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := db.Delete(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// Report lists the differences between the catalog and the volume.
type Report struct {
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
	Missing []string `json:"missing"`
}

// Clean reports whether the volume matches the catalog.
func (r Report) Clean() bool {
	return len(r.Added) == 0 && len(r.Changed) == 0 && len(r.Missing) == 0
}

// Verify compares the volume against the catalog without modifying either.
// Added are files on the volume with no record, Changed are files whose
// content no longer hashes to the recorded checksum, and Missing are records
// with no file.
func Verify(db *DB, e *fileops.Engine) (Report, error) {
	var rep Report
	checksums, err := db.AllChecksums()
	if err != nil {
		return rep, err
	}
	seen := make(map[string]struct{}, len(checksums))
	for entry, err := range e.Walk("/", treeDepth) {
		if err != nil {
			return rep, fmt.Errorf("catalog: verify: %w", err)
		}
		if entry.IsDir {
			continue
		}
		seen[entry.Path] = struct{}{}
		want, ok := checksums[entry.Path]
		if !ok {
			rep.Added = append(rep.Added, entry.Path)
			continue
		}
		data, err := e.Read(entry.Path)
		if err != nil {
			return rep, fmt.Errorf("catalog: verify: %w", err)
		}
		if !checksum.Match(data, want) {
			rep.Changed = append(rep.Changed, entry.Path)
		}
	}
	for p := range checksums {
		if _, ok := seen[p]; !ok {
			rep.Missing = append(rep.Missing, p)
		}
	}
	slices.Sort(rep.Missing)
	return rep, nil
}

// Refresh re-reads path from the volume and updates its record. A missing
// path drops the record; a directory refreshes every file below it.
func Refresh(db *DB, e *fileops.Engine, path string) error {
	if e.IsDir(path) {
		for entry, err := range e.Walk(path, treeDepth) {
			if err != nil {
				return fmt.Errorf("catalog: refresh %s: %w", path, err)
			}
			if entry.IsDir {
				continue
			}
			if err := refreshFile(db, e, entry.Path); err != nil {
				return err
			}
		}
		return nil
	}
	if !e.Exists(path) {
		return db.Delete(path)
	}
	return refreshFile(db, e, path)
}

func refreshFile(db *DB, e *fileops.Engine, path string) error {
	data, err := e.Read(path)
	if err != nil {
		return fmt.Errorf("catalog: refresh %s: %w", path, err)
	}
	return db.Upsert(Row{
		Path:      path,
		Size:      int64(len(data)),
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now().UTC(),
	})
}

// Observer keeps the catalog current as the engine mutates the volume.
// Failures are logged and never propagate into the engine.
func Observer(db *DB, e *fileops.Engine, logger *slog.Logger) fileops.Observer {
	return func(ev fileops.Event) {
		var err error
		switch ev.Kind {
		case fileops.EventFormatted:
			err = db.Clear()
		case fileops.EventRemoved:
			err = db.Delete(ev.Path)
		case fileops.EventMoved:
			err = db.Delete(ev.From)
			if err == nil {
				err = db.DeleteTree(ev.From)
			}
			if err == nil {
				err = Refresh(db, e, ev.Path)
			}
		case fileops.EventMkdir:
			return
		case fileops.EventRmdir:
			err = db.DeleteTree(ev.Path)
		default:
			err = Refresh(db, e, ev.Path)
		}
		if err != nil {
			logger.Warn("catalog: update failed",
				slog.String("event", ev.Kind),
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
		}
	}
}
