package flash

import (
	"errors"
	"fmt"
	"path"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

var errClosed = errors.New("flash: handle closed")

type handle struct {
	dev    *Device
	path   string
	node   *node
	mode   driver.Mode
	off    int64
	closed bool

	children []string
	next     int
}

func (h *handle) Name() string { return path.Base(h.path) }

func (h *handle) IsDir() bool { return h.node.dir }

func (h *handle) Size() int64 {
	if h.node.dir {
		return 0
	}
	return int64(len(h.node.data))
}

func (h *handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, errClosed
	}
	if h.node.dir {
		return 0, fmt.Errorf("flash: read %s: %w", h.path, apperr.ErrIsDirectory)
	}
	if h.mode != driver.ModeRead {
		return 0, fmt.Errorf("flash: read %s: opened for %s", h.path, h.mode)
	}
	if h.off >= int64(len(h.node.data)) {
		return 0, nil
	}
	n := copy(p, h.node.data[h.off:])
	h.off += int64(n)
	return n, nil
}

func (h *handle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, errClosed
	}
	if h.mode == driver.ModeRead {
		return 0, fmt.Errorf("flash: write %s: opened read-only", h.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if h.dev.faults.failWrite(h.path) {
		return 0, fmt.Errorf("flash: write %s: injected fault", h.path)
	}
	if chunk := h.dev.faults.MaxChunk; chunk > 0 && len(p) > chunk {
		p = p[:chunk]
	}

	// The node's own blocks are reusable, so the ceiling is everything that
	// is free plus what this file already holds.
	avail := h.dev.capacity - h.dev.UsedBytes() + h.dev.footprint(h.node)
	limit := avail / h.dev.blockSize * h.dev.blockSize
	room := limit - h.off
	if room <= 0 {
		return 0, fmt.Errorf("flash: write %s: %w", h.path, ErrNoSpace)
	}
	if int64(len(p)) > room {
		p = p[:room]
	}

	h.node.data = append(h.node.data[:h.off], p...)
	h.off += int64(len(p))
	return len(p), nil
}

func (h *handle) Flush() error {
	if h.closed {
		return errClosed
	}
	return nil
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.dev.open > 0 {
		h.dev.open--
	}
	return nil
}

func (h *handle) OpenNextFile() (driver.File, error) {
	if h.closed {
		return nil, errClosed
	}
	if !h.node.dir {
		return nil, fmt.Errorf("flash: %s: %w", h.path, apperr.ErrNotDirectory)
	}
	for h.next < len(h.children) {
		p := h.children[h.next]
		h.next++
		if !h.dev.Exists(p) {
			continue
		}
		return h.dev.Open(p, driver.ModeRead)
	}
	return nil, nil
}
