package fileops

// Event kinds delivered to observers.
const (
	EventWritten   = "written"
	EventAppended  = "appended"
	EventSaved     = "saved"
	EventTruncated = "truncated"
	EventCopied    = "copied"
	EventMoved     = "moved"
	EventRemoved   = "removed"
	EventTouched   = "touched"
	EventMkdir     = "mkdir"
	EventRmdir     = "rmdir"
	EventFormatted = "formatted"
)

// Event describes a completed mutation. From is set for copy and move.
type Event struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	From string `json:"from,omitempty"`
}

// Observer is called synchronously, on the caller's goroutine, after a
// mutating operation succeeds.
type Observer func(Event)

func (e *Engine) emit(ev Event) {
	for _, fn := range e.observers {
		fn(ev)
	}
}

// Subscribe registers fn after construction, for observers that need the
// engine itself.
func (e *Engine) Subscribe(fn Observer) {
	if fn != nil {
		e.observers = append(e.observers, fn)
	}
}
