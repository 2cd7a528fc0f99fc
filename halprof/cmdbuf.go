package halprof

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameprof"
	"github.com/gogpu/frameprof/measure"
)

// Errors returned by CommandBuffer measurements.
var (
	// ErrMeasurementOpen is returned by BeginCmdMeasurement while the
	// previous measurement has not ended.
	ErrMeasurementOpen = errors.New("halprof: measurement already open")

	// ErrNoMeasurement is returned by EndCmdMeasurement without a begin.
	ErrNoMeasurement = errors.New("halprof: no open measurement")

	// ErrQueriesExhausted is returned when every query slot is used.
	ErrQueriesExhausted = errors.New("halprof: timestamp queries exhausted")

	// ErrProfilingDisabled is returned by measurement calls on a command
	// buffer created without timestamp support.
	ErrProfilingDisabled = errors.New("halprof: profiling not enabled on command buffer")

	// ErrRenderPassOpen is returned by BeginCmdMeasurement while a render
	// pass opened through BeginRenderPass is recording.
	ErrRenderPassOpen = errors.New("halprof: render pass open")
)

// queriesPerMeasurement are the PreStart, Start and End slots.
const queriesPerMeasurement = 3

var handleSeq atomic.Uint64

// CommandBuffer times commands recorded into a hal.CommandEncoder.
//
// A measurement brackets one command with two empty compute passes. The
// opening pass writes PreStart at its beginning and Start at its end; the
// closing pass writes End at its end. Passes are serialized on the GPU, so
// the difference End-Start covers the work recorded in between.
//
// Compute passes cannot be encoded inside a render pass. Render passes must
// therefore be opened with BeginRenderPass: while one is recording,
// IsProfilingEnabled reports false and commands inside it are not timed. A
// measurement ended inside the pass, such as the one around the command
// that opened it, gets its closing marker when the pass ends and so covers
// the whole pass.
//
// A CommandBuffer is used by one recording thread at a time.
type CommandBuffer struct {
	device  hal.Device
	encoder hal.CommandEncoder
	label   string
	handle  uintptr

	capacity uint32
	querySet hal.QuerySet
	buffers  *timestampBuffers

	ids      []measure.MeasurementID
	open     bool
	resolved uint32

	inRenderPass bool
	endPending   bool
}

var _ frameprof.CommandBuffer = (*CommandBuffer)(nil)

// NewCommandBuffer prepares encoder for profiling. When the device cannot
// create timestamp query sets the returned CommandBuffer reports profiling
// as disabled and the layer leaves it alone.
func NewCommandBuffer(device hal.Device, encoder hal.CommandEncoder, opts ...Option) (*CommandBuffer, error) {
	cfg := newConfig(opts)
	cb := &CommandBuffer{
		device:   device,
		encoder:  encoder,
		label:    cfg.label,
		handle:   cfg.handle,
		capacity: cfg.capacity,
	}
	if cb.handle == 0 {
		cb.handle = uintptr(handleSeq.Add(1))
	}

	qs, err := device.CreateQuerySet(&hal.QuerySetDescriptor{
		Label: cfg.label + "_queries",
		Type:  hal.QueryTypeTimestamp,
		Count: cfg.capacity * queriesPerMeasurement,
	})
	if errors.Is(err, hal.ErrTimestampsNotSupported) {
		frameprof.Logger().Debug("halprof: timestamps unsupported, command buffer not profiled",
			"label", cfg.label)
		return cb, nil
	}
	if err != nil {
		return nil, fmt.Errorf("halprof: create query set: %w", err)
	}

	bufs, err := newTimestampBuffers(device, cfg.label, cfg.capacity*queriesPerMeasurement)
	if err != nil {
		device.DestroyQuerySet(qs)
		return nil, err
	}
	cb.querySet = qs
	cb.buffers = bufs
	return cb, nil
}

// IsProfilingEnabled reports whether a measurement can begin now: timestamp
// queries are available and no render pass is recording.
func (cb *CommandBuffer) IsProfilingEnabled() bool {
	return cb.querySet != nil && !cb.inRenderPass
}

// FillCount returns the number of measurements begun so far.
func (cb *CommandBuffer) FillCount() int { return len(cb.ids) }

// Handle returns the application handle of the command buffer.
func (cb *CommandBuffer) Handle() uintptr { return cb.handle }

// Encoder returns the wrapped encoder.
func (cb *CommandBuffer) Encoder() hal.CommandEncoder { return cb.encoder }

func (cb *CommandBuffer) slot(i int, which uint32) uint32 {
	return uint32(i)*queriesPerMeasurement + which
}

// BeginCmdMeasurement encodes the opening marker pass for id.
func (cb *CommandBuffer) BeginCmdMeasurement(id *measure.MeasurementID) error {
	switch {
	case cb.querySet == nil:
		return ErrProfilingDisabled
	case cb.inRenderPass:
		return ErrRenderPassOpen
	case cb.open:
		return ErrMeasurementOpen
	case uint32(len(cb.ids)) >= cb.capacity:
		return fmt.Errorf("%w: capacity %d", ErrQueriesExhausted, cb.capacity)
	}

	n := len(cb.ids)
	pre, start := cb.slot(n, 0), cb.slot(n, 1)
	pass := cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: cb.label + "_begin",
		TimestampWrites: &hal.ComputePassTimestampWrites{
			QuerySet:                  cb.querySet,
			BeginningOfPassWriteIndex: &pre,
			EndOfPassWriteIndex:       &start,
		},
	})
	pass.End()

	cb.ids = append(cb.ids, *id)
	cb.open = true
	return nil
}

// EndCmdMeasurement encodes the closing marker pass of the open
// measurement. Inside a render pass the marker is deferred to the end of the
// pass.
func (cb *CommandBuffer) EndCmdMeasurement() error {
	if cb.querySet == nil {
		return ErrProfilingDisabled
	}
	if !cb.open {
		return ErrNoMeasurement
	}
	cb.open = false
	if cb.inRenderPass {
		cb.endPending = true
		return nil
	}
	cb.encodeEnd()
	return nil
}

func (cb *CommandBuffer) encodeEnd() {
	end := cb.slot(len(cb.ids)-1, 2)
	pass := cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: cb.label + "_end",
		TimestampWrites: &hal.ComputePassTimestampWrites{
			QuerySet:            cb.querySet,
			EndOfPassWriteIndex: &end,
		},
	})
	pass.End()
}

// BeginRenderPass opens a render pass on the wrapped encoder. Measurements
// are suspended until the returned encoder's End.
func (cb *CommandBuffer) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	rp := cb.encoder.BeginRenderPass(desc)
	cb.inRenderPass = true
	return &renderPass{RenderPassEncoder: rp, cb: cb}
}

func (cb *CommandBuffer) endRenderPass() {
	if !cb.inRenderPass {
		return
	}
	cb.inRenderPass = false
	if cb.endPending {
		cb.endPending = false
		cb.encodeEnd()
	}
}

// renderPass resumes measurements on its command buffer when it ends.
type renderPass struct {
	hal.RenderPassEncoder
	cb *CommandBuffer
}

func (p *renderPass) End() {
	p.RenderPassEncoder.End()
	p.cb.endRenderPass()
}

// EncodeResolve records the copy of every written query into the readback
// buffer. Call it once, after the last command and before EndEncoding.
// A measurement still open is dropped.
func (cb *CommandBuffer) EncodeResolve() {
	if cb.querySet == nil {
		return
	}
	if cb.open || cb.endPending {
		cb.ids = cb.ids[:len(cb.ids)-1]
		cb.open = false
		cb.endPending = false
	}
	cb.resolved = uint32(len(cb.ids)) * queriesPerMeasurement
	cb.buffers.encodeResolve(cb.encoder, cb.querySet, cb.resolved)
}

// Results reads back the raw clocks of every measurement. The submission
// carrying the command buffer must have completed.
func (cb *CommandBuffer) Results() ([]measure.Result, error) {
	if cb.querySet == nil || cb.resolved == 0 {
		return nil, nil
	}
	ticks, err := cb.buffers.read(cb.device, cb.resolved)
	if err != nil {
		return nil, err
	}

	n := int(cb.resolved / queriesPerMeasurement)
	out := make([]measure.Result, n)
	for i := range out {
		out[i] = measure.Result{
			ID: cb.ids[i],
			Clocks: measure.RawClocks{
				PreStart: ticks[cb.slot(i, 0)],
				Start:    ticks[cb.slot(i, 1)],
				End:      ticks[cb.slot(i, 2)],
			},
			MeasurementCount: n,
		}
	}
	return out, nil
}

// Reset forgets recorded measurements so the query slots can be reused with
// a new encoding.
func (cb *CommandBuffer) Reset() {
	cb.ids = cb.ids[:0]
	cb.open = false
	cb.resolved = 0
	cb.inRenderPass = false
	cb.endPending = false
}

// Destroy frees the query set and readback buffers. The encoder is owned by
// the caller.
func (cb *CommandBuffer) Destroy() {
	if cb.buffers != nil {
		cb.buffers.destroy(cb.device)
		cb.buffers = nil
	}
	if cb.querySet != nil {
		cb.device.DestroyQuerySet(cb.querySet)
		cb.querySet = nil
	}
}
