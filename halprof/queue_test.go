package halprof

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameprof/calibration"
)

func TestNewQueueRequiresTimestamps(t *testing.T) {
	open, adapter := openNoop(t)
	_, err := NewQueue(1, open, adapter)
	if !errors.Is(err, hal.ErrTimestampsNotSupported) {
		t.Fatalf("NewQueue() error = %v, want ErrTimestampsNotSupported", err)
	}
}

func TestQueueDescribe(t *testing.T) {
	dev, q, adapter := openTimestamped(t)
	queue, err := NewQueue(4, hal.OpenDevice{Device: dev, Queue: q}, adapter, WithLabel("gfx"))
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	if queue.ID() != 4 {
		t.Errorf("ID() = %d, want 4", queue.ID())
	}
	info := queue.Describe()
	if info.Label != "gfx" || info.Adapter.Name != adapter.Info.Name {
		t.Errorf("Describe() = %+v", info)
	}
	if info.Adapter.Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("Adapter.Type = %v, want Unknown", info.Adapter.Type)
	}
	if info.Backend != adapter.Info.Backend {
		t.Errorf("Backend = %v, want %v", info.Backend, adapter.Info.Backend)
	}
}

func TestTimestampFrequency(t *testing.T) {
	dev, q, adapter := openTimestamped(t)
	queue, err := NewQueue(1, hal.OpenDevice{Device: dev, Queue: q}, adapter)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	// The noop queue reports a period of one nanosecond.
	if got := queue.TimestampFrequency(); got != 1_000_000_000 {
		t.Errorf("TimestampFrequency() = %d, want 1e9", got)
	}
}

func TestQueueCalibration(t *testing.T) {
	dev, q, adapter := openTimestamped(t)
	queue, err := NewQueue(1, hal.OpenDevice{Device: dev, Queue: q}, adapter)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	t.Cleanup(func() { _ = queue.Close() })

	engine := &calibration.Engine{Clock: fixedClock(5000)}
	pair, err := engine.Collect(context.Background(), queue)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if pair.GPUTimestamp != tickStep {
		t.Errorf("GPUTimestamp = %d, want %d", pair.GPUTimestamp, tickStep)
	}
	if pair.CPUTimestamp != 5000 || pair.QueueFrequency != 1_000_000_000 {
		t.Errorf("pair = %+v", pair)
	}

	// The kernel is built once and reused.
	k := queue.kernel
	if _, err := engine.Collect(context.Background(), queue); err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if queue.kernel != k {
		t.Error("calibration kernel rebuilt")
	}
}

func TestQueueCalibrationTimeoutParksWorkload(t *testing.T) {
	dev, q, adapter := openTimestamped(t)
	queue, err := NewQueue(1, hal.OpenDevice{Device: dev, Queue: q}, adapter)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	q.hold = true
	engine := &calibration.Engine{Timeout: 5 * time.Millisecond, PollInterval: time.Millisecond}
	_, err = engine.Collect(context.Background(), queue)
	if !errors.Is(err, calibration.ErrCalibrationTimeout) {
		t.Fatalf("Collect() error = %v, want ErrCalibrationTimeout", err)
	}
	if len(queue.retired) != 1 {
		t.Fatalf("retired = %d, want 1 parked workload", len(queue.retired))
	}

	q.hold = false
	p, err := queue.SubmitTimestamp()
	if err != nil {
		t.Fatalf("SubmitTimestamp() error = %v", err)
	}
	p.Release()
	if len(queue.retired) != 0 {
		t.Errorf("retired = %d after completion, want 0", len(queue.retired))
	}
}

func TestQueueClose(t *testing.T) {
	dev, q, adapter := openTimestamped(t)
	queue, err := NewQueue(1, hal.OpenDevice{Device: dev, Queue: q}, adapter)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := queue.SubmitTimestamp(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("SubmitTimestamp() after Close error = %v, want ErrQueueClosed", err)
	}
}

type fixedClock uint64

func (c fixedClock) Now() uint64       { return uint64(c) }
func (c fixedClock) Frequency() uint64 { return 1_000_000_000 }
