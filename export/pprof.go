package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/pprof/profile"

	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/measure"
	"github.com/gogpu/frameprof/store"
)

// Sample types of the GPU profile.
const (
	SampleTypeCount = "commands"
	SampleTypeTime  = "gpu_time"
)

// ProfileOption configures PProf.
type ProfileOption func(*profileBuilder)

// WithTickFrequency gives results without an aligned time, as produced under
// passthrough calibration, their raw GPU duration at freq ticks per second.
func WithTickFrequency(freq uint64) ProfileOption {
	return func(b *profileBuilder) {
		b.tickFreq = freq
	}
}

// WithQueueTickFrequency is WithTickFrequency for a single queue. It takes
// precedence over WithTickFrequency.
func WithQueueTickFrequency(queue measure.QueueID, freq uint64) ProfileOption {
	return func(b *profileBuilder) {
		b.queueFreq[queue] = freq
	}
}

// profileBuilder interns one function and location per (queue, command).
type profileBuilder struct {
	p         *profile.Profile
	functions map[string]*profile.Function
	locations map[string]*profile.Location

	tickFreq  uint64
	queueFreq map[measure.QueueID]uint64
}

func newProfileBuilder() *profileBuilder {
	return &profileBuilder{
		queueFreq: make(map[measure.QueueID]uint64),
		p: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: SampleTypeCount, Unit: "count"},
				{Type: SampleTypeTime, Unit: "nanoseconds"},
			},
			DefaultSampleType: SampleTypeTime,
			PeriodType:        &profile.ValueType{Type: SampleTypeTime, Unit: "nanoseconds"},
			Period:            1,
		},
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
	}
}

func (b *profileBuilder) location(name string) *profile.Location {
	if loc, ok := b.locations[name]; ok {
		return loc
	}
	fn, ok := b.functions[name]
	if !ok {
		fn = &profile.Function{
			ID:         uint64(len(b.p.Function) + 1),
			Name:       name,
			SystemName: name,
		}
		b.functions[name] = fn
		b.p.Function = append(b.p.Function, fn)
	}
	loc := &profile.Location{
		ID:   uint64(len(b.p.Location) + 1),
		Line: []profile.Line{{Function: fn}},
	}
	b.locations[name] = loc
	b.p.Location = append(b.p.Location, loc)
	return loc
}

func (b *profileBuilder) nanos(queue measure.QueueID, r measure.Result) int64 {
	if d := r.Aligned.Duration(); d > 0 {
		return int64(d * float64(time.Millisecond))
	}
	freq, ok := b.queueFreq[queue]
	if !ok {
		freq = b.tickFreq
	}
	if freq == 0 {
		return 0
	}
	return int64(float64(r.Clocks.Ticks()) * float64(time.Second) / float64(freq))
}

func (b *profileBuilder) add(queue measure.QueueID, thread measure.ThreadID, r measure.Result) {
	nanos := b.nanos(queue, r)
	b.p.Sample = append(b.p.Sample, &profile.Sample{
		// Leaf first: the command, then the queue it ran on.
		Location: []*profile.Location{
			b.location(r.ID.FuncID.String()),
			b.location("queue " + strconv.FormatUint(uint64(queue), 10)),
		},
		Value: []int64{1, nanos},
		Label: map[string][]string{
			"thread": {strconv.FormatUint(uint64(thread), 10)},
		},
		NumLabel: map[string][]int64{
			"frame":     {int64(r.ID.Frame)},
			"sample_id": {int64(r.ID.SampleID)},
		},
	})
}

// PProf builds a profile whose samples are GPU commands weighted by their
// aligned duration, or by their raw duration when a tick frequency is known
// and the result was not aligned. Stacks are command over queue, so flame
// graphs group by queue first.
func PProf(snap []store.BucketSnapshot, opts ...ProfileOption) (*profile.Profile, error) {
	b := newProfileBuilder()
	for _, opt := range opts {
		opt(b)
	}
	for _, bucket := range snap {
		for _, r := range bucket.Results {
			if !r.ID.FuncID.Valid() {
				r.ID.FuncID = funcid.Unknown
			}
			b.add(bucket.Queue, bucket.Thread, r)
		}
	}
	b.p.Comments = append(b.p.Comments, "frameprof GPU command profile")
	if err := b.p.CheckValid(); err != nil {
		return nil, fmt.Errorf("export: invalid profile: %w", err)
	}
	return b.p, nil
}

// WritePProf writes the gzipped profile of snap to w.
func WritePProf(w io.Writer, snap []store.BucketSnapshot, opts ...ProfileOption) error {
	p, err := PProf(snap, opts...)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("export: write profile: %w", err)
	}
	return nil
}
