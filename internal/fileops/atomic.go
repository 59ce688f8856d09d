package fileops

import (
	"fmt"
	"log/slog"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

// publish moves a finished staging file onto target.
//
// When the volume can replace atomically, the target is swapped in one step.
// Otherwise the existing target is removed and the staging file renamed onto
// it; a rename failure after that removal leaves target absent, because the
// original content is already gone. The staging file is discarded on every
// failure.
func (e *Engine) publish(stage, target string) error {
	if e.vol.SupportsReplace() {
		if err := e.vol.Replace(stage, target); err != nil {
			e.discard(stage)
			return fmt.Errorf("replace: %w", err)
		}
		return nil
	}

	if e.vol.Exists(target) {
		if err := e.vol.Remove(target); err != nil {
			e.discard(stage)
			return fmt.Errorf("remove original: %w", err)
		}
	}
	if err := e.vol.Rename(stage, target); err != nil {
		e.discard(stage)
		e.logger.Warn("fileops: publish lost target",
			slog.String("path", target),
			slog.String("error", err.Error()))
		return fmt.Errorf("rename staging file: %w", err)
	}
	return nil
}

// SafeSave replaces path with data so that a failure never leaves a partly
// written target. The payload is staged in path+".tmp" and then published.
func (e *Engine) SafeSave(path string, data []byte) error {
	if err := e.ready("safe save", path); err != nil {
		return err
	}
	stage := path + SaveSuffix

	// A stage that cannot be opened is not ours to remove.
	f, err := e.open(stage, driver.ModeWrite)
	if err != nil {
		return e.fail("safe save", path, err)
	}
	if err := fill(f, data); err != nil {
		e.discard(stage)
		return e.fail("safe save", path, err)
	}
	if err := e.publish(stage, path); err != nil {
		return e.fail("safe save", path, err)
	}

	e.emit(Event{Kind: EventSaved, Path: path})
	return nil
}

// Truncate shortens path to at most size bytes. A file that is already
// shorter keeps its content; it is never padded. Truncating to zero rewrites
// the file empty in place, anything else goes through path+".trunc".
func (e *Engine) Truncate(path string, size int64) error {
	if err := e.ready("truncate", path); err != nil {
		return err
	}
	if size < 0 {
		return e.fail("truncate", path, fmt.Errorf("negative size %d: %w", size, apperr.ErrInvalidArgument))
	}
	if !e.vol.Exists(path) {
		return e.fail("truncate", path, apperr.ErrNotFound)
	}
	if size == 0 {
		if err := e.writeFile(path, nil, driver.ModeWrite); err != nil {
			return e.fail("truncate", path, err)
		}
		e.emit(Event{Kind: EventTruncated, Path: path})
		return nil
	}

	stage := path + TruncateSuffix
	if err := e.stageTruncated(path, stage, size); err != nil {
		return e.fail("truncate", path, err)
	}
	if err := e.publish(stage, path); err != nil {
		return e.fail("truncate", path, err)
	}

	e.emit(Event{Kind: EventTruncated, Path: path})
	return nil
}

// stageTruncated copies the first size bytes of path into stage. Both
// handles are closed before it returns.
func (e *Engine) stageTruncated(path, stage string, size int64) error {
	src, err := e.openSource(path)
	if err != nil {
		return err
	}
	defer src.release()

	dst, err := e.open(stage, driver.ModeWrite)
	if err != nil {
		return err
	}
	defer dst.release()

	if _, err := pump(dst, src, make([]byte, e.readChunk), size); err != nil {
		dst.release()
		e.discard(stage)
		return err
	}
	if err := dst.finish(); err != nil {
		e.discard(stage)
		return err
	}
	return nil
}

// Move renames from to to, replacing an existing destination. Without an
// atomic replace the destination is removed first, so a failed rename leaves
// neither path holding the moved content.
func (e *Engine) Move(from, to string) error {
	if err := e.ready("move", from); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if !e.vol.Exists(from) {
		return e.fail("move", from, apperr.ErrNotFound)
	}

	if e.vol.SupportsReplace() {
		if err := e.vol.Replace(from, to); err != nil {
			return e.fail("move", from, err)
		}
	} else {
		if e.vol.Exists(to) {
			if err := e.vol.Remove(to); err != nil {
				return e.fail("move", to, err)
			}
		}
		if err := e.vol.Rename(from, to); err != nil {
			return e.fail("move", from, err)
		}
	}

	e.emit(Event{Kind: EventMoved, Path: to, From: from})
	return nil
}

// Touch creates path if it is missing. Existing content is left alone.
func (e *Engine) Touch(path string) error {
	if err := e.ready("touch", path); err != nil {
		return err
	}
	if err := e.writeFile(path, nil, driver.ModeAppend); err != nil {
		return e.fail("touch", path, err)
	}
	e.emit(Event{Kind: EventTouched, Path: path})
	return nil
}
