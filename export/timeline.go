// Package export writes profiling results in formats other tools read: the
// Chrome Trace Event format, pprof profiles and OpenTelemetry spans.
package export

import (
	"time"

	"github.com/gogpu/frameprof/measure"
)

// Timeline places frame-relative GPU results and CPU-tick API entries on one
// absolute time axis.
type Timeline struct {
	// Origin is the CPU counter value mapped to time zero.
	Origin uint64

	// CPUFrequency is the CPU counter rate in ticks per second.
	CPUFrequency uint64

	// FrameStarts holds the CPU counter value at the start of each frame.
	// A frame without an entry starts at Origin.
	FrameStarts map[int]uint64

	// Epoch is the wall clock time of Origin. Only span export uses it.
	Epoch time.Time
}

func (tl Timeline) ticksToMicros(tick uint64) float64 {
	if tl.CPUFrequency == 0 {
		return 0
	}
	var d float64
	if tick >= tl.Origin {
		d = float64(tick - tl.Origin)
	} else {
		d = -float64(tl.Origin - tick)
	}
	return d * 1e6 / float64(tl.CPUFrequency)
}

func (tl Timeline) frameMicros(frame int) float64 {
	start, ok := tl.FrameStarts[frame]
	if !ok {
		return 0
	}
	return tl.ticksToMicros(start)
}

// gpuSpan returns the start and duration of r in microseconds from Origin.
func (tl Timeline) gpuSpan(r measure.Result) (float64, float64) {
	base := tl.frameMicros(r.ID.Frame)
	return base + r.Aligned.Start*1000, r.Aligned.Duration() * 1000
}

// cpuSpan returns the start and duration of e in microseconds from Origin.
func (tl Timeline) cpuSpan(e *measure.APIEntry) (float64, float64) {
	start := tl.ticksToMicros(e.CPUStart)
	end := tl.ticksToMicros(e.CPUEnd)
	return start, max(end-start, 0)
}

func (tl Timeline) wallTime(micros float64) time.Time {
	return tl.Epoch.Add(time.Duration(micros * float64(time.Microsecond)))
}
