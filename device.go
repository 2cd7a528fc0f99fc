package frameprof

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/measure"
)

// CommandBuffer is the part of a driver command buffer the layer needs to
// time individual commands.
type CommandBuffer interface {
	// BeginCmdMeasurement starts timing the next recorded command.
	BeginCmdMeasurement(id *measure.MeasurementID) error

	// EndCmdMeasurement stops timing the command started last.
	EndCmdMeasurement() error

	// IsProfilingEnabled reports whether the command buffer was created
	// with profiling support.
	IsProfilingEnabled() bool

	// FillCount returns the number of measurements recorded so far.
	FillCount() int

	// Handle returns the application handle, for diagnostics.
	Handle() uintptr
}

// Queue is a GPU queue that command buffers are submitted to. It is also the
// calibration source for the results produced on it.
type Queue interface {
	calibration.Source

	ID() measure.QueueID
	Describe() QueueInfo
}

// QueueInfo describes a queue for logs and exports.
type QueueInfo struct {
	Label   string
	Adapter gpucontext.AdapterInfo
	Backend gputypes.Backend
}

// FrameCounter reports the frame currently being recorded.
type FrameCounter interface {
	Frame() int
}

// FrameCounterFunc adapts a function to FrameCounter.
type FrameCounterFunc func() int

func (f FrameCounterFunc) Frame() int { return f() }
