package fileops

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
)

// DefaultDepth is the recursion limit used by callers that do not pick one.
const DefaultDepth = 5

// Entry is one item produced by Walk.
type Entry struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
	Depth int    `json:"depth"`
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// openDir opens p and rejects anything that is not a directory.
func (e *Engine) openDir(p string) (*handle, error) {
	h, err := e.open(p, driver.ModeRead)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrNotDirectory, err)
	}
	if !h.IsDir() {
		h.release()
		return nil, apperr.ErrNotDirectory
	}
	return h, nil
}

// Walk enumerates every entry under root depth-first, descending at most
// maxDepth levels; a depth of 0 yields nothing. Nothing is read until the
// sequence is ranged over, and each range performs a fresh traversal. One
// directory handle per level is held open while iterating, and all of them
// are closed when the loop ends early. Errors are yielded once and end the
// traversal. The namespace is assumed to be acyclic.
func (e *Engine) Walk(root string, maxDepth int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if err := e.ready("walk", root); err != nil {
			yield(Entry{}, err)
			return
		}
		if maxDepth <= 0 {
			return
		}
		e.walk(root, maxDepth, 1, yield)
	}
}

func (e *Engine) walk(dir string, levels, depth int, yield func(Entry, error) bool) bool {
	d, err := e.openDir(dir)
	if err != nil {
		yield(Entry{}, fmt.Errorf("fileops: walk %s: %w", dir, err))
		return false
	}
	defer d.release()

	for {
		child, err := d.OpenNextFile()
		if err != nil {
			yield(Entry{}, fmt.Errorf("fileops: walk %s: %w", dir, err))
			return false
		}
		if child == nil {
			return true
		}
		entry := Entry{
			Path:  joinPath(dir, child.Name()),
			Name:  child.Name(),
			IsDir: child.IsDir(),
			Size:  child.Size(),
			Depth: depth,
		}
		_ = child.Close()

		if !yield(entry, nil) {
			return false
		}
		if entry.IsDir && levels > 1 {
			if !e.walk(entry.Path, levels-1, depth+1, yield) {
				return false
			}
		}
	}
}

// Collect gathers a Walk into a slice, stopping at the first error.
func (e *Engine) Collect(root string, maxDepth int) ([]Entry, error) {
	var out []Entry
	for entry, err := range e.Walk(root, maxDepth) {
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// diagnostic picks the line printed to a listing sink for err.
func diagnostic(err error) string {
	if errors.Is(err, apperr.ErrNotMounted) {
		return "FS not initialized"
	}
	return "Not a directory"
}

// ListDir prints the direct children of path to sink, one per line.
// Directories get a trailing "/", files are followed by their size.
func (e *Engine) ListDir(path string, sink io.Writer) {
	if !e.vol.Mounted() {
		fmt.Fprintln(sink, diagnostic(apperr.ErrNotMounted))
		return
	}
	d, err := e.openDir(path)
	if err != nil {
		fmt.Fprintln(sink, diagnostic(err))
		return
	}
	defer d.release()

	for {
		child, err := d.OpenNextFile()
		if err != nil || child == nil {
			return
		}
		if child.IsDir() {
			fmt.Fprintf(sink, "%s/\n", child.Name())
		} else {
			fmt.Fprintf(sink, "%s %d\n", child.Name(), child.Size())
		}
		_ = child.Close()
	}
}

// ListRecursive prints the full path of every entry under path, descending
// at most maxDepth levels.
func (e *Engine) ListRecursive(path string, sink io.Writer, maxDepth int) {
	for entry, err := range e.Walk(path, maxDepth) {
		if err != nil {
			fmt.Fprintln(sink, diagnostic(err))
			return
		}
		fmt.Fprintln(sink, entry.Path)
	}
}
