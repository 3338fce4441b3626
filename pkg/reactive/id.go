package reactive

import "sync/atomic"

// idCounter is the source of unique IDs for sources and listeners.
var idCounter uint64

// nextID returns the next unique ID. IDs are never reused.
func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}
