// Package osthread reads the operating system id of the calling thread, the
// key the profiler uses for per-thread bookkeeping.
//
// Goroutines migrate between threads, so callers that record commands must
// pin themselves with runtime.LockOSThread for the id to stay meaningful.
package osthread

import "github.com/gogpu/frameprof/measure"

// Current returns the id of the calling OS thread.
func Current() measure.ThreadID {
	return measure.ThreadID(current())
}
