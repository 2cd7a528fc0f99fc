package halprof

import (
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// tsDevice is the noop device with timestamp queries. Every timestamp write
// advances a shared tick counter by tickStep, so passes encoded in order get
// increasing timestamps.
type tsDevice struct {
	hal.Device
	ticks uint64
}

const tickStep = 10

type tsQuerySet struct {
	noop.Resource
	values []uint64
}

func (d *tsDevice) CreateQuerySet(desc *hal.QuerySetDescriptor) (hal.QuerySet, error) {
	return &tsQuerySet{values: make([]uint64, desc.Count)}, nil
}

func (d *tsDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	inner, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &tsEncoder{CommandEncoder: inner, dev: d}, nil
}

func (d *tsDevice) tick() uint64 {
	d.ticks += tickStep
	return d.ticks
}

func (d *tsDevice) bytes(buf hal.Buffer, size uint64) []byte {
	m, err := d.MapBuffer(buf, 0, size)
	if err != nil {
		panic(err)
	}
	return unsafe.Slice((*byte)(m.Ptr), size)
}

// tsEncoder counts compute passes begun while a render pass is open, which
// real backends reject.
type tsEncoder struct {
	hal.CommandEncoder
	dev *tsDevice

	renderOpen    bool
	nestedCompute int
}

func (e *tsEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.renderOpen = true
	return &tsRenderPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), enc: e}
}

type tsRenderPass struct {
	hal.RenderPassEncoder
	enc *tsEncoder
}

func (p *tsRenderPass) End() {
	p.RenderPassEncoder.End()
	p.enc.renderOpen = false
}

func (e *tsEncoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	if e.renderOpen {
		e.nestedCompute++
	}
	inner := e.CommandEncoder.BeginComputePass(desc)
	tw := desc.TimestampWrites
	if tw == nil {
		return inner
	}
	qs := tw.QuerySet.(*tsQuerySet)
	if tw.BeginningOfPassWriteIndex != nil {
		qs.values[*tw.BeginningOfPassWriteIndex] = e.dev.tick()
	}
	p := &tsPass{ComputePassEncoder: inner}
	if tw.EndOfPassWriteIndex != nil {
		idx := *tw.EndOfPassWriteIndex
		p.onEnd = func() { qs.values[idx] = e.dev.tick() }
	}
	return p
}

func (e *tsEncoder) ResolveQuerySet(qs hal.QuerySet, first, count uint32, dst hal.Buffer, offset uint64) {
	values := qs.(*tsQuerySet).values[first : first+count]
	out := e.dev.bytes(dst, offset+uint64(count)*timestampSize)[offset:]
	for i, v := range values {
		for b := range timestampSize {
			out[i*timestampSize+b] = byte(v >> (8 * b))
		}
	}
}

func (e *tsEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	for _, r := range regions {
		from := e.dev.bytes(src, r.SrcOffset+r.Size)[r.SrcOffset:]
		to := e.dev.bytes(dst, r.DstOffset+r.Size)[r.DstOffset:]
		copy(to, from)
	}
}

type tsPass struct {
	hal.ComputePassEncoder
	onEnd func()
}

func (p *tsPass) End() {
	p.ComputePassEncoder.End()
	if p.onEnd != nil {
		p.onEnd()
	}
}

// heldQueue reports no completed submissions while hold is set.
type heldQueue struct {
	hal.Queue
	hold bool
}

func (q *heldQueue) PollCompleted() uint64 {
	if q.hold {
		return 0
	}
	return q.Queue.PollCompleted()
}

func openNoop(t *testing.T) (hal.OpenDevice, hal.ExposedAdapter) {
	t.Helper()
	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)

	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend exposed no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return open, adapters[0]
}

// openTimestamped returns the noop device and queue with timestamp support.
func openTimestamped(t *testing.T) (*tsDevice, *heldQueue, hal.ExposedAdapter) {
	t.Helper()
	open, adapter := openNoop(t)
	adapter.Features = gputypes.Features(gputypes.FeatureTimestampQuery)
	return &tsDevice{Device: open.Device}, &heldQueue{Queue: open.Queue}, adapter
}
