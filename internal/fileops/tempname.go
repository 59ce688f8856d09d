package fileops

import "fmt"

// TempName returns a scratch path of the form <prefix><ms>-<n>.tmp that does
// not exist on the volume. n increases on every call, so names stay distinct
// within the same millisecond. An empty prefix selects the engine default.
func (e *Engine) TempName(prefix string) string {
	if prefix == "" {
		prefix = e.prefix
	}
	for {
		n := e.seq.Add(1)
		name := fmt.Sprintf("%s%d-%d.tmp", prefix, e.now().UnixMilli(), n)
		if !e.vol.Exists(name) {
			return name
		}
	}
}
