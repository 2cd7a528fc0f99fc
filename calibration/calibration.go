// Package calibration relates the GPU timestamp counter of a queue to the
// CPU monotonic counter so that GPU samples can be placed on the CPU
// timeline.
//
// A calibration pair is taken by submitting a tiny workload that writes a
// GPU timestamp, waiting for it to complete and sampling the CPU counter
// immediately after the readback. The pair plus both counter frequencies are
// enough to convert any GPU tick into frame-relative milliseconds.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors returned by the calibration engine and the alignment step.
var (
	// ErrCalibrationTimeout is returned when the calibration workload does
	// not complete within Engine.Timeout.
	ErrCalibrationTimeout = errors.New("calibration: timed out waiting for GPU timestamp")

	// ErrNegativeAlignment is returned when a sample would land before the
	// start of its frame.
	ErrNegativeAlignment = errors.New("calibration: negative aligned timestamp")

	// ErrInvalidCalibration is returned for a pair with a zero frequency.
	ErrInvalidCalibration = errors.New("calibration: invalid calibration pair")

	// ErrUnknownStrategy is returned by Lookup for an unregistered name.
	ErrUnknownStrategy = errors.New("calibration: unknown strategy")
)

const (
	// DefaultTimeout bounds the wait for the calibration workload.
	DefaultTimeout = 5 * time.Second

	// DefaultPollInterval is the delay between completion checks.
	DefaultPollInterval = 100 * time.Microsecond
)

// Pair correlates one GPU timestamp with the CPU counter value read right
// after it became available.
type Pair struct {
	CPUFrequency   uint64 // CPU counter ticks per second
	CPUTimestamp   uint64
	GPUTimestamp   uint64
	QueueFrequency uint64 // GPU counter ticks per second
}

// Valid reports whether both frequencies are non-zero.
func (p Pair) Valid() bool {
	return p.CPUFrequency != 0 && p.QueueFrequency != 0
}

// Clock is a CPU monotonic counter.
type Clock interface {
	Now() uint64
	Frequency() uint64
}

// monotonicClock counts nanoseconds since process start using the runtime's
// monotonic clock reading. The counter starts at 1 so that a valid reading is
// never zero.
type monotonicClock struct {
	base time.Time
}

func (c monotonicClock) Now() uint64       { return uint64(time.Since(c.base)) + 1 }
func (c monotonicClock) Frequency() uint64 { return uint64(time.Second) }

var systemClock = monotonicClock{base: time.Now()}

// SystemClock returns the process-wide monotonic CPU clock.
func SystemClock() Clock { return systemClock }

// Source is the queue side of a calibration: it knows its timestamp
// frequency and can submit a workload that records a GPU timestamp.
type Source interface {
	// TimestampFrequency returns GPU timestamp ticks per second.
	TimestampFrequency() uint64

	// SubmitTimestamp submits the calibration workload.
	SubmitTimestamp() (Pending, error)
}

// Pending is an in-flight calibration workload.
type Pending interface {
	// Done reports whether the workload finished.
	Done() (bool, error)

	// Timestamp reads back the recorded GPU timestamp. Only valid once Done
	// returned true.
	Timestamp() (uint64, error)

	// Release frees the resources held by the workload. It is safe to call
	// on a workload that never completed.
	Release()
}

// Engine collects calibration pairs. The zero value is ready to use.
type Engine struct {
	// Timeout bounds the wait for the workload. Zero means DefaultTimeout.
	Timeout time.Duration

	// PollInterval is the delay between completion checks. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// Clock samples the CPU counter. Nil means SystemClock.
	Clock Clock
}

func (e *Engine) timeout() time.Duration {
	if e == nil || e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func (e *Engine) pollInterval() time.Duration {
	if e == nil || e.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return e.PollInterval
}

func (e *Engine) clock() Clock {
	if e == nil || e.Clock == nil {
		return systemClock
	}
	return e.Clock
}

// Collect submits the calibration workload on src, waits for it and returns
// the resulting pair. The CPU counter is sampled immediately after the GPU
// timestamp is read back.
func (e *Engine) Collect(ctx context.Context, src Source) (Pair, error) {
	freq := src.TimestampFrequency()
	if freq == 0 {
		return Pair{}, fmt.Errorf("%w: zero queue timestamp frequency", ErrInvalidCalibration)
	}

	pending, err := src.SubmitTimestamp()
	if err != nil {
		return Pair{}, fmt.Errorf("calibration: submit workload: %w", err)
	}
	defer pending.Release()

	if err := e.wait(ctx, pending); err != nil {
		return Pair{}, err
	}

	gpu, err := pending.Timestamp()
	if err != nil {
		return Pair{}, fmt.Errorf("calibration: read timestamp: %w", err)
	}
	clock := e.clock()
	cpu := clock.Now()

	return Pair{
		CPUFrequency:   clock.Frequency(),
		CPUTimestamp:   cpu,
		GPUTimestamp:   gpu,
		QueueFrequency: freq,
	}, nil
}

func (e *Engine) wait(ctx context.Context, p Pending) error {
	done, err := p.Done()
	if err != nil {
		return fmt.Errorf("calibration: poll workload: %w", err)
	}
	if done {
		return nil
	}

	deadline := time.NewTimer(e.timeout())
	defer deadline.Stop()
	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrCalibrationTimeout
		case <-ticker.C:
			done, err := p.Done()
			if err != nil {
				return fmt.Errorf("calibration: poll workload: %w", err)
			}
			if done {
				return nil
			}
		}
	}
}
