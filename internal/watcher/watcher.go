// Package watcher follows out-of-band changes to a host-backed volume with
// fsnotify and reports them as volume paths.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/flashfs/internal/fileops"
)

// reconcileDelay debounces the reconciliation pass that follows renames.
const reconcileDelay = 200 * time.Millisecond

// Handler receives watcher-driven changes. Paths are absolute volume paths
// ("/dir/file"), not host paths. Calls are made from the watcher goroutine.
type Handler interface {
	FileChanged(path string)
	FileRemoved(path string)
	// Reconcile compares the whole volume with what the handler knows.
	Reconcile()
}

// Watch starts an fsnotify watcher on the host root of a volume and reports
// file changes to h until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass, since fsnotify reports
// only the old name. Writes to a staging file are ignored while the file it
// stages for exists; removals are always reported.
func Watch(ctx context.Context, root string, h Handler, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			h.Reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files can land before the directory is watched.
					reportDir(root, absPath, h)
					continue
				}
			}

			p, ok := volumePath(root, absPath)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if staging(absPath) {
					continue
				}
				logger.Debug("watcher: changed", slog.String("path", p), slog.String("op", ev.Op.String()))
				h.FileChanged(p)

			case ev.Op&fsnotify.Remove != 0:
				logger.Debug("watcher: removed", slog.String("path", p))
				h.FileRemoved(p)

			case ev.Op&fsnotify.Rename != 0:
				logger.Debug("watcher: renamed away", slog.String("path", p))
				h.FileRemoved(p)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// volumePath maps a host path below root to a volume path.
func volumePath(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// staging reports whether the host path abs is an engine staging file, that
// is, it carries a staging suffix and the file it stages for exists.
func staging(abs string) bool {
	for _, suffix := range []string{fileops.SaveSuffix, fileops.TruncateSuffix} {
		if base, ok := strings.CutSuffix(abs, suffix); ok {
			_, err := os.Stat(base)
			return err == nil
		}
	}
	return false
}

// reportDir reports every file already present in a newly created directory.
func reportDir(root, dir string, h Handler) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if p, ok := volumePath(root, path); ok && !staging(path) {
			h.FileChanged(p)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
