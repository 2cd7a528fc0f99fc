// Package measure defines the values that flow through the profiler: the
// identity of a timed command, its raw GPU clocks, the final aligned result
// and the CPU-side API record it is correlated with.
package measure

import "github.com/gogpu/frameprof/funcid"

// ThreadID identifies the application thread that recorded a command.
type ThreadID uint32

// QueueID identifies the GPU queue a command buffer was submitted to.
type QueueID uint64

// MeasurementID is the identity of one timed command.
type MeasurementID struct {
	SampleID uint64
	FuncID   funcid.FuncID
	Frame    int

	// CmdBuf is the application handle of the command buffer, kept for
	// diagnostics only.
	CmdBuf uintptr

	// Ordinal is the position of the command within its command buffer.
	Ordinal int
}

// RawClocks holds the hardware timestamps of one command, in GPU ticks.
type RawClocks struct {
	PreStart uint64
	Start    uint64
	End      uint64
}

// Ticks returns End-Start, or 0 when the clocks are out of order.
func (c RawClocks) Ticks() uint64 {
	if c.End < c.Start {
		return 0
	}
	return c.End - c.Start
}

// AlignedMillis are the command's start and end on the CPU timeline, in
// milliseconds relative to the start of the frame.
type AlignedMillis struct {
	Start float64
	End   float64
}

// Duration returns End-Start in milliseconds.
func (a AlignedMillis) Duration() float64 { return a.End - a.Start }

// Result is a validated (and, when calibration is enabled, aligned) sample.
type Result struct {
	ID      MeasurementID
	Clocks  RawClocks
	Aligned AlignedMillis

	// MeasurementCount is the number of measurements recorded in the
	// command buffer that produced this result.
	MeasurementCount int
}

// NormalizeZeroDuration turns a zero-length measurement into a one-tick one.
// It reports whether the clocks were changed.
func (r *Result) NormalizeZeroDuration() bool {
	if r.Clocks.Start != r.Clocks.End {
		return false
	}
	r.Clocks.End++
	return true
}

// APIEntry is the CPU-side trace record of one intercepted call. Entries are
// owned by the tracer; the profiler only tags them with a sample id and
// indexes them for lookup.
type APIEntry struct {
	SampleID uint64
	FuncID   funcid.FuncID
	ThreadID ThreadID

	// CPUStart and CPUEnd are CPU counter readings taken around the call.
	CPUStart uint64
	CPUEnd   uint64

	Args        string
	ReturnValue int64
}
