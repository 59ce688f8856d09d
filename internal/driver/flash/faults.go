package flash

// Faults is a fault-injection plan for exercising failure paths. Nil
// predicates never fire.
type Faults struct {
	Mount  func() bool
	Format func() bool
	// Write is consulted before every write call; returning true makes the
	// call store nothing.
	Write  func(path string) bool
	Rename func(from, to string) bool
	Remove func(path string) bool
	// MaxChunk caps the bytes accepted per write call, forcing partial writes.
	MaxChunk int
}

func (f *Faults) failWrite(path string) bool {
	return f.Write != nil && f.Write(path)
}
