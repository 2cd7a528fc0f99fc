// Package simgpu is a deterministic simulated GPU. It implements the
// profiler's CommandBuffer and Queue contracts without hardware and can
// inject the failures real drivers produce: failed query begins and ends,
// empty or out-of-order timestamps and calibrations that never complete.
//
// The GPU counter is derived from a calibration.Clock, so the simulated
// timeline lines up with the CPU one the same way a real device does.
package simgpu

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameprof"
	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/measure"
)

// ErrInjected is returned by operations failed on purpose.
var ErrInjected = errors.New("simgpu: injected failure")

// Faults are per-operation failure probabilities in [0, 1].
type Faults struct {
	BeginFailure       float64
	EndFailure         float64
	EmptyTimestamp     float64
	ReorderedTimestamp float64
	CalibrationStall   float64
}

// Config describes a simulated device.
type Config struct {
	Name string

	// Frequency is the GPU counter rate in ticks per second.
	// Zero means DefaultFrequency.
	Frequency uint64

	// Offset is the GPU counter value at CPU time zero.
	Offset uint64

	Seed   uint64
	Faults Faults

	// Clock drives the GPU counter. Nil means calibration.SystemClock.
	Clock calibration.Clock

	// Cost returns the execution time of a command. Nil means DefaultCost.
	Cost func(funcid.FuncID) time.Duration
}

// DefaultFrequency is a typical mobile GPU timestamp rate.
const DefaultFrequency = 19_200_000

// DefaultCost is a rough per-command execution time table.
func DefaultCost(id funcid.FuncID) time.Duration {
	switch id {
	case funcid.CmdDraw, funcid.CmdDrawIndexed:
		return 40 * time.Microsecond
	case funcid.CmdDrawIndirect, funcid.CmdDrawIndexedIndirect:
		return 60 * time.Microsecond
	case funcid.CmdDispatch, funcid.CmdDispatchIndirect:
		return 120 * time.Microsecond
	case funcid.CmdCopyBuffer, funcid.CmdCopyImage, funcid.CmdBlitImage,
		funcid.CmdCopyBufferToImage, funcid.CmdCopyImageToBuffer:
		return 80 * time.Microsecond
	case funcid.CmdClearColorImage, funcid.CmdClearDepthStencilImage, funcid.CmdClearAttachments:
		return 15 * time.Microsecond
	case funcid.CmdPipelineBarrier, funcid.CmdWaitEvents:
		return 5 * time.Microsecond
	case funcid.CmdBeginRenderPass, funcid.CmdEndRenderPass, funcid.CmdNextSubpass:
		return 10 * time.Microsecond
	default:
		return 2 * time.Microsecond
	}
}

// Device is a simulated GPU. It is safe for concurrent use.
type Device struct {
	cfg Config

	mu        sync.Mutex
	rng       *rand.Rand
	busyUntil uint64
	handles   uintptr
}

// New creates a simulated device.
func New(cfg Config) *Device {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Clock == nil {
		cfg.Clock = calibration.SystemClock()
	}
	if cfg.Cost == nil {
		cfg.Cost = DefaultCost
	}
	if cfg.Name == "" {
		cfg.Name = "Simulated GPU"
	}
	return &Device{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Frequency returns the GPU counter rate.
func (d *Device) Frequency() uint64 { return d.cfg.Frequency }

// Now reads the GPU counter.
func (d *Device) Now() uint64 {
	cpu := d.cfg.Clock.Now()
	cf := d.cfg.Clock.Frequency()
	sec, rem := cpu/cf, cpu%cf
	return d.cfg.Offset + sec*d.cfg.Frequency + rem*d.cfg.Frequency/cf
}

func (d *Device) ticks(dur time.Duration) uint64 {
	t := uint64(dur) * d.cfg.Frequency / uint64(time.Second)
	if t == 0 {
		t = 1
	}
	return t
}

// chance reports whether an event of probability p happens. Callers hold mu.
func (d *Device) chance(p float64) bool {
	return p > 0 && d.rng.Float64() < p
}

func (d *Device) roll(p float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chance(p)
}

// NewCommandBuffer creates a command buffer. Profiling is only possible when
// profiling is true, like a driver command buffer created with a query pool.
func (d *Device) NewCommandBuffer(profiling bool) *CommandBuffer {
	d.mu.Lock()
	d.handles++
	h := 0x1000 + d.handles*0x10
	d.mu.Unlock()
	return &CommandBuffer{dev: d, handle: h, profiling: profiling, open: -1}
}

// Queue returns a queue of the device with the given id.
func (d *Device) Queue(id measure.QueueID) *Queue {
	return &Queue{dev: d, id: id}
}

type command struct {
	id          funcid.FuncID
	measurement int
}

// CommandBuffer is a simulated command buffer.
type CommandBuffer struct {
	dev       *Device
	handle    uintptr
	profiling bool

	cmds  []command
	ids   []measure.MeasurementID
	noEnd []bool
	open  int
}

var _ frameprof.CommandBuffer = (*CommandBuffer)(nil)

func (cb *CommandBuffer) IsProfilingEnabled() bool { return cb.profiling }
func (cb *CommandBuffer) FillCount() int           { return len(cb.ids) }
func (cb *CommandBuffer) Handle() uintptr          { return cb.handle }

func (cb *CommandBuffer) BeginCmdMeasurement(id *measure.MeasurementID) error {
	if cb.dev.roll(cb.dev.cfg.Faults.BeginFailure) {
		return ErrInjected
	}
	cb.ids = append(cb.ids, *id)
	cb.noEnd = append(cb.noEnd, false)
	cb.open = len(cb.ids) - 1
	return nil
}

func (cb *CommandBuffer) EndCmdMeasurement() error {
	if cb.open < 0 {
		return errors.New("simgpu: no open measurement")
	}
	i := cb.open
	cb.open = -1
	if cb.dev.roll(cb.dev.cfg.Faults.EndFailure) {
		cb.noEnd[i] = true
		return ErrInjected
	}
	return nil
}

// Record appends a command, as the driver call would.
func (cb *CommandBuffer) Record(id funcid.FuncID) {
	cb.cmds = append(cb.cmds, command{id: id, measurement: cb.open})
}

// Reset empties the command buffer for reuse.
func (cb *CommandBuffer) Reset() {
	cb.cmds = cb.cmds[:0]
	cb.ids = cb.ids[:0]
	cb.noEnd = cb.noEnd[:0]
	cb.open = -1
}

// Queue is a simulated queue. It is a calibration source.
type Queue struct {
	dev *Device
	id  measure.QueueID
}

var _ frameprof.Queue = (*Queue)(nil)

func (q *Queue) ID() measure.QueueID { return q.id }

func (q *Queue) Describe() frameprof.QueueInfo {
	return frameprof.QueueInfo{
		Label:   "sim",
		Adapter: gpucontext.AdapterInfo{Name: q.dev.cfg.Name, Type: gpucontext.AdapterTypeSoftware},
		Backend: gputypes.BackendEmpty,
	}
}

func (q *Queue) TimestampFrequency() uint64 { return q.dev.cfg.Frequency }

// Submit executes cb and returns the raw clocks of its measurements in
// recording order. Commands run back to back from the later of the current
// GPU time and the end of the previous submission.
func (q *Queue) Submit(cb *CommandBuffer) []measure.Result {
	d := q.dev
	now := d.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	cursor := max(now, d.busyUntil)
	clocks := make([]measure.RawClocks, len(cb.ids))
	started := make([]bool, len(cb.ids))

	for _, c := range cb.cmds {
		gap := 1 + d.rng.Uint64N(3)
		if c.measurement >= 0 && !started[c.measurement] {
			clocks[c.measurement].PreStart = cursor
			cursor += gap
			clocks[c.measurement].Start = cursor
			started[c.measurement] = true
		} else {
			cursor += gap
		}
		cost := d.ticks(d.cfg.Cost(c.id))
		jitter := d.rng.Uint64N(cost/4 + 1)
		cursor += cost + jitter
		if c.measurement >= 0 {
			clocks[c.measurement].End = cursor
		}
	}

	out := make([]measure.Result, len(cb.ids))
	for i, id := range cb.ids {
		c := clocks[i]
		if !started[i] {
			// Measured nothing: the begin and end markers land together.
			c = measure.RawClocks{PreStart: cursor, Start: cursor + 1, End: cursor + 1}
			cursor++
		}
		if cb.noEnd[i] {
			c.End = 0
		}
		if d.chance(d.cfg.Faults.EmptyTimestamp) {
			c.PreStart = 0
		}
		if d.chance(d.cfg.Faults.ReorderedTimestamp) {
			c.Start, c.End = c.End, c.Start
		}
		out[i] = measure.Result{ID: id, Clocks: c, MeasurementCount: len(cb.ids)}
	}
	d.busyUntil = cursor
	return out
}

// SubmitTimestamp starts a simulated calibration. It completes on the second
// poll unless a stall is injected.
func (q *Queue) SubmitTimestamp() (calibration.Pending, error) {
	return &pending{dev: q.dev, stalled: q.dev.roll(q.dev.cfg.Faults.CalibrationStall)}, nil
}

type pending struct {
	dev     *Device
	stalled bool
	polls   int
}

func (p *pending) Done() (bool, error) {
	p.polls++
	return !p.stalled && p.polls >= 2, nil
}

func (p *pending) Timestamp() (uint64, error) {
	if p.stalled {
		return 0, errors.New("simgpu: calibration not complete")
	}
	return p.dev.Now(), nil
}

func (p *pending) Release() {}
