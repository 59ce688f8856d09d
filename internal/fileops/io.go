package fileops

import (
	"fmt"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

// writeAll stores data in full, retrying partial writes. A write that stores
// nothing is fatal.
func writeAll(f driver.File, data []byte) error {
	for written := 0; written < len(data); {
		n, err := f.Write(data[written:])
		if n <= 0 {
			if err != nil {
				return fmt.Errorf("%w: %w", apperr.ErrShortWrite, err)
			}
			return apperr.ErrShortWrite
		}
		written += n
	}
	return nil
}

// pump streams src into dst through buf. A negative limit copies until src
// is exhausted; otherwise at most limit bytes are copied and the last read is
// clipped to what remains.
func pump(dst, src driver.File, buf []byte, limit int64) (int64, error) {
	var total int64
	for limit < 0 || total < limit {
		chunk := buf
		if limit >= 0 && int64(len(chunk)) > limit-total {
			chunk = chunk[:limit-total]
		}
		n, err := src.Read(chunk)
		if err != nil {
			return total, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			break
		}
		if err := writeAll(dst, chunk[:n]); err != nil {
			return total, err
		}
		total += int64(n)
	}
	return total, nil
}

// openSource opens p for reading and rejects directories.
func (e *Engine) openSource(p string) (*handle, error) {
	h, err := e.open(p, driver.ModeRead)
	if err != nil {
		return nil, err
	}
	if h.IsDir() {
		h.release()
		return nil, apperr.ErrIsDirectory
	}
	return h, nil
}

// Copy streams origin into destination. Copying a path onto itself succeeds
// without touching the volume. Destination is flushed and closed before
// origin is closed.
func (e *Engine) Copy(origin, destination string) error {
	if err := e.ready("copy", origin); err != nil {
		return err
	}
	if origin == destination {
		return nil
	}

	src, err := e.openSource(origin)
	if err != nil {
		return e.fail("copy", origin, err)
	}
	defer src.release()

	dst, err := e.open(destination, driver.ModeWrite)
	if err != nil {
		return e.fail("copy", destination, err)
	}
	defer dst.release()

	if _, err := pump(dst, src, make([]byte, e.copyChunk), -1); err != nil {
		return e.fail("copy", destination, err)
	}
	if err := dst.finish(); err != nil {
		return e.fail("copy", destination, err)
	}
	src.release()

	e.emit(Event{Kind: EventCopied, Path: destination, From: origin})
	return nil
}

// writeFile opens p in mode, stores data and flush-closes the handle.
func (e *Engine) writeFile(p string, data []byte, mode driver.Mode) error {
	f, err := e.open(p, mode)
	if err != nil {
		return err
	}
	return fill(f, data)
}

// fill stores data through f and flush-closes it.
func fill(f *handle, data []byte) error {
	defer f.release()
	if err := writeAll(f, data); err != nil {
		return err
	}
	return f.finish()
}

// Write replaces the content of path with data, or appends to it. An empty
// payload leaves an empty file (or an unchanged one when appending).
func (e *Engine) Write(path string, data []byte, appending bool) error {
	if err := e.ready("write", path); err != nil {
		return err
	}
	mode, kind := driver.ModeWrite, EventWritten
	if appending {
		mode, kind = driver.ModeAppend, EventAppended
	}
	if err := e.writeFile(path, data, mode); err != nil {
		return e.fail("write", path, err)
	}
	e.emit(Event{Kind: kind, Path: path})
	return nil
}

func (e *Engine) Append(path string, data []byte) error {
	return e.Write(path, data, true)
}

func (e *Engine) WriteString(path, s string) error {
	return e.Write(path, []byte(s), false)
}

func (e *Engine) AppendString(path, s string) error {
	return e.Write(path, []byte(s), true)
}

// Read returns the whole content of path. The reported size only sizes the
// initial buffer; reading continues until the file is exhausted.
func (e *Engine) Read(path string) ([]byte, error) {
	if err := e.ready("read", path); err != nil {
		return nil, err
	}
	f, err := e.openSource(path)
	if err != nil {
		return nil, e.fail("read", path, err)
	}
	defer f.release()

	var out []byte
	if size := f.Size(); size > 0 {
		out = make([]byte, 0, size)
	} else {
		out = []byte{}
	}
	buf := make([]byte, e.readChunk)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return nil, e.fail("read", path, err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func (e *Engine) ReadString(path string) (string, error) {
	data, err := e.Read(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadInto fills buf from the start of path and returns the number of bytes
// read. A file shorter than buf is not an error.
func (e *Engine) ReadInto(path string, buf []byte) (int, error) {
	if err := e.ready("read", path); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, e.fail("read", path, fmt.Errorf("empty buffer: %w", apperr.ErrInvalidArgument))
	}
	f, err := e.openSource(path)
	if err != nil {
		return 0, e.fail("read", path, err)
	}
	defer f.release()

	var total int
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		if err != nil {
			return total, e.fail("read", path, err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Size returns the length of a regular file, or 0 for anything else.
func (e *Engine) Size(path string) int64 {
	if !e.vol.Mounted() {
		return 0
	}
	f, err := e.open(path, driver.ModeRead)
	if err != nil {
		return 0
	}
	defer f.release()
	if f.IsDir() {
		return 0
	}
	return f.Size()
}

func (e *Engine) IsDir(path string) bool {
	if !e.vol.Mounted() {
		return false
	}
	f, err := e.open(path, driver.ModeRead)
	if err != nil {
		return false
	}
	defer f.release()
	return f.IsDir()
}

func (e *Engine) Exists(path string) bool {
	return e.vol.Exists(path)
}

func (e *Engine) Remove(path string) error {
	if err := e.ready("remove", path); err != nil {
		return err
	}
	if err := e.vol.Remove(path); err != nil {
		return e.fail("remove", path, err)
	}
	e.emit(Event{Kind: EventRemoved, Path: path})
	return nil
}

// Rename is the raw driver rename; it does not replace an existing target.
func (e *Engine) Rename(from, to string) error {
	if err := e.ready("rename", from); err != nil {
		return err
	}
	if err := e.vol.Rename(from, to); err != nil {
		return e.fail("rename", from, err)
	}
	e.emit(Event{Kind: EventMoved, Path: to, From: from})
	return nil
}

func (e *Engine) Mkdir(path string) error {
	if err := e.ready("mkdir", path); err != nil {
		return err
	}
	if err := e.vol.Mkdir(path); err != nil {
		return e.fail("mkdir", path, err)
	}
	e.emit(Event{Kind: EventMkdir, Path: path})
	return nil
}

func (e *Engine) Rmdir(path string) error {
	if err := e.ready("rmdir", path); err != nil {
		return err
	}
	if err := e.vol.Rmdir(path); err != nil {
		return e.fail("rmdir", path, err)
	}
	e.emit(Event{Kind: EventRmdir, Path: path})
	return nil
}

// Format erases the volume and remounts it.
func (e *Engine) Format() error {
	if err := e.vol.Format(); err != nil {
		return fmt.Errorf("fileops: %w", err)
	}
	e.emit(Event{Kind: EventFormatted, Path: "/"})
	return nil
}
