package halprof

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// timestampSize is the size of one resolved timestamp query.
const timestampSize = 8

// timestampBuffers is a resolve target plus the host-visible copy of it.
type timestampBuffers struct {
	resolve hal.Buffer
	staging hal.Buffer
	count   uint32
}

func newTimestampBuffers(device hal.Device, label string, count uint32) (*timestampBuffers, error) {
	size := uint64(count) * timestampSize
	resolve, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_resolve",
		Size:  size,
		Usage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("halprof: create resolve buffer: %w", err)
	}
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		device.DestroyBuffer(resolve)
		return nil, fmt.Errorf("halprof: create staging buffer: %w", err)
	}
	return &timestampBuffers{resolve: resolve, staging: staging, count: count}, nil
}

// encodeResolve resolves the first n queries of qs and copies them to the
// staging buffer.
func (b *timestampBuffers) encodeResolve(enc hal.CommandEncoder, qs hal.QuerySet, n uint32) {
	if n == 0 {
		return
	}
	enc.ResolveQuerySet(qs, 0, n, b.resolve, 0)
	enc.CopyBufferToBuffer(b.resolve, b.staging, []hal.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      uint64(n) * timestampSize,
	}})
}

// read maps the staging buffer and decodes the first n timestamps.
func (b *timestampBuffers) read(device hal.Device, n uint32) ([]uint64, error) {
	if n == 0 {
		return nil, nil
	}
	size := uint64(n) * timestampSize
	m, err := device.MapBuffer(b.staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("halprof: map staging buffer: %w", err)
	}
	defer func() { _ = device.UnmapBuffer(b.staging) }()

	raw := unsafe.Slice((*byte)(m.Ptr), size)
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(raw[i*timestampSize:])
	}
	return out, nil
}

func (b *timestampBuffers) destroy(device hal.Device) {
	device.DestroyBuffer(b.resolve)
	device.DestroyBuffer(b.staging)
}
