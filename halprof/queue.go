// Package halprof binds the profiling layer to the wgpu hardware
// abstraction layer. Queue is a calibration source backed by a hal.Queue and
// CommandBuffer times individual commands recorded into a
// hal.CommandEncoder with timestamp queries.
//
// Both need an adapter with gputypes.FeatureTimestampQuery.
//
// Measurements are bracketed by compute passes, which cannot be encoded
// while a render pass is open. Open render passes with
// CommandBuffer.BeginRenderPass so draws inside them are skipped instead of
// breaking the encoding; the command that opened the pass is timed over the
// whole pass.
package halprof

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameprof"
	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/measure"
)

// ErrQueueClosed is returned by SubmitTimestamp after Close.
var ErrQueueClosed = errors.New("halprof: queue closed")

// Queue is a hal.Queue that can take calibration timestamps.
type Queue struct {
	id     measure.QueueID
	device hal.Device
	queue  hal.Queue
	info   frameprof.QueueInfo
	label  string

	mu      sync.Mutex
	kernel  *kernel
	retired []*pending
	closed  bool
}

var _ frameprof.Queue = (*Queue)(nil)

// NewQueue wraps the device and queue opened from adapter. It fails with
// hal.ErrTimestampsNotSupported when the adapter cannot write timestamps.
func NewQueue(id measure.QueueID, open hal.OpenDevice, adapter hal.ExposedAdapter, opts ...Option) (*Queue, error) {
	if !adapter.Features.Contains(gputypes.FeatureTimestampQuery) {
		return nil, fmt.Errorf("halprof: adapter %q: %w", adapter.Info.Name, hal.ErrTimestampsNotSupported)
	}
	cfg := newConfig(opts)
	return &Queue{
		id:     id,
		device: open.Device,
		queue:  open.Queue,
		label:  cfg.label,
		info: frameprof.QueueInfo{
			Label: cfg.label,
			Adapter: gpucontext.AdapterInfo{
				Name: adapter.Info.Name,
				Type: adapterType(adapter.Info.DeviceType),
			},
			Backend: adapter.Info.Backend,
		},
	}, nil
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// ID returns the queue id given to NewQueue.
func (q *Queue) ID() measure.QueueID { return q.id }

// Describe returns the adapter description of the queue.
func (q *Queue) Describe() frameprof.QueueInfo { return q.info }

// TimestampFrequency converts the queue's timestamp period (nanoseconds per
// tick) into ticks per second. It returns 0 for an unusable period.
func (q *Queue) TimestampFrequency() uint64 {
	period := q.queue.GetTimestampPeriod()
	if period <= 0 || math.IsNaN(float64(period)) || math.IsInf(float64(period), 0) {
		return 0
	}
	return uint64(math.Round(1e9 / float64(period)))
}

// SubmitTimestamp records and submits a single-workgroup dispatch whose
// end-of-pass timestamp is resolved into a host-visible buffer.
func (q *Queue) SubmitTimestamp() (calibration.Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	q.reclaimLocked()

	if q.kernel == nil {
		k, err := newKernel(q.device, q.label+"_calibration")
		if err != nil {
			return nil, err
		}
		q.kernel = k
	}

	p := &pending{queue: q}
	if err := p.record(); err != nil {
		p.destroy()
		return nil, err
	}

	idx, err := q.queue.Submit([]hal.CommandBuffer{p.cmdBuf})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("halprof: submit calibration: %w", err)
	}
	p.submission = idx

	frameprof.Logger().Debug("halprof: calibration submitted",
		"queue", q.id,
		"submission", idx)
	return p, nil
}

// reclaimLocked frees workloads released before the GPU finished them.
func (q *Queue) reclaimLocked() {
	if len(q.retired) == 0 {
		return
	}
	completed := q.queue.PollCompleted()
	kept := q.retired[:0]
	for _, p := range q.retired {
		if p.submission <= completed {
			p.destroy()
			continue
		}
		kept = append(kept, p)
	}
	q.retired = kept
}

// Close waits for the device to go idle and frees the calibration
// resources. The wrapped device and queue are not destroyed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	err := q.device.WaitIdle()
	for _, p := range q.retired {
		p.destroy()
	}
	q.retired = nil
	if q.kernel != nil {
		q.kernel.destroy()
		q.kernel = nil
	}
	if err != nil {
		return fmt.Errorf("halprof: wait idle: %w", err)
	}
	return nil
}

// pending is one in-flight calibration workload.
type pending struct {
	queue      *Queue
	encoder    hal.CommandEncoder
	cmdBuf     hal.CommandBuffer
	querySet   hal.QuerySet
	buffers    *timestampBuffers
	submission uint64
	released   bool
}

func (p *pending) record() error {
	q := p.queue
	var err error

	p.querySet, err = q.device.CreateQuerySet(&hal.QuerySetDescriptor{
		Label: q.label + "_calibration_queries",
		Type:  hal.QueryTypeTimestamp,
		Count: 1,
	})
	if err != nil {
		return fmt.Errorf("halprof: create query set: %w", err)
	}

	p.buffers, err = newTimestampBuffers(q.device, q.label+"_calibration", 1)
	if err != nil {
		return err
	}

	p.encoder, err = q.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: q.label + "_calibration_encoder",
	})
	if err != nil {
		return fmt.Errorf("halprof: create command encoder: %w", err)
	}
	if err := p.encoder.BeginEncoding(q.label + "_calibration"); err != nil {
		return fmt.Errorf("halprof: begin encoding: %w", err)
	}

	end := uint32(0)
	pass := p.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: q.label + "_calibration_pass",
		TimestampWrites: &hal.ComputePassTimestampWrites{
			QuerySet:            p.querySet,
			EndOfPassWriteIndex: &end,
		},
	})
	pass.SetPipeline(q.kernel.pipeline)
	pass.Dispatch(1, 1, 1)
	pass.End()

	p.buffers.encodeResolve(p.encoder, p.querySet, 1)

	p.cmdBuf, err = p.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("halprof: end encoding: %w", err)
	}
	return nil
}

// Done polls the queue's completed submission index.
func (p *pending) Done() (bool, error) {
	return p.queue.queue.PollCompleted() >= p.submission, nil
}

// Timestamp reads the resolved GPU timestamp.
func (p *pending) Timestamp() (uint64, error) {
	ts, err := p.buffers.read(p.queue.device, 1)
	if err != nil {
		return 0, err
	}
	return ts[0], nil
}

// Release frees the workload, or parks it on the queue until the GPU is
// done with it.
func (p *pending) Release() {
	if p.released {
		return
	}
	p.released = true

	q := p.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.queue.PollCompleted() >= p.submission {
		p.destroy()
		return
	}
	q.retired = append(q.retired, p)
}

func (p *pending) destroy() {
	d := p.queue.device
	if p.cmdBuf != nil {
		d.FreeCommandBuffer(p.cmdBuf)
		p.cmdBuf = nil
	}
	if p.encoder != nil {
		p.encoder.Destroy()
		p.encoder = nil
	}
	if p.buffers != nil {
		p.buffers.destroy(d)
		p.buffers = nil
	}
	if p.querySet != nil {
		d.DestroyQuerySet(p.querySet)
		p.querySet = nil
	}
}
