package calibration

import (
	"fmt"

	"github.com/gogpu/frameprof/measure"
)

// Align converts the Start and End clocks of r into milliseconds relative to
// frameStart, a CPU counter value, and stores them in r.Aligned.
//
// A GPU tick X maps to
//
//	(X - GPUTimestamp)*1000/QueueFrequency + (CPUTimestamp - frameStart)*1000/CPUFrequency
//
// Both differences are signed. A negative result means the pair does not
// describe the sample (or the frame started later than the sample) and is
// reported as ErrNegativeAlignment; r is left unchanged in that case.
func Align(r *measure.Result, p Pair, frameStart uint64) error {
	if !p.Valid() {
		return ErrInvalidCalibration
	}

	offset := ticksToMillis(signedDelta(p.CPUTimestamp, frameStart), p.CPUFrequency)
	start := ticksToMillis(signedDelta(r.Clocks.Start, p.GPUTimestamp), p.QueueFrequency) + offset
	end := ticksToMillis(signedDelta(r.Clocks.End, p.GPUTimestamp), p.QueueFrequency) + offset

	if start < 0 || end < 0 {
		return fmt.Errorf("%w: start=%.6fms end=%.6fms", ErrNegativeAlignment, start, end)
	}
	r.Aligned = measure.AlignedMillis{Start: start, End: end}
	return nil
}

// signedDelta returns a-b without wrapping around on unsigned underflow.
func signedDelta(a, b uint64) float64 {
	if a >= b {
		return float64(a - b)
	}
	return -float64(b - a)
}

func ticksToMillis(ticks float64, freq uint64) float64 {
	return ticks * 1000 / float64(freq)
}
