package frameprof

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/internal/sequencer"
	"github.com/gogpu/frameprof/measure"
	"github.com/gogpu/frameprof/store"
)

// Layer is the profiling interception layer. One Layer serves every thread
// of the application; PreCall and PostCall are called inline on the thread
// that records the command.
type Layer struct {
	logger   *slog.Logger
	filter   *funcid.Filter
	strategy calibration.Strategy
	frames   FrameCounter
	store    *store.Store
	clock    calibration.Clock
	seq      *sequencer.Sequencer

	enabled atomic.Bool
	frame   atomic.Int64
}

// NewLayer creates a Layer. Profiling starts enabled unless
// WithEnabled(false) is given.
func NewLayer(opts ...Option) *Layer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := &Layer{
		logger:   o.logger,
		filter:   o.filter,
		strategy: o.strategy,
		frames:   o.frames,
		store:    o.store,
		clock:    o.clock,
		seq:      sequencer.New(),
	}
	if l.store == nil {
		l.store = store.New()
	}
	if l.clock == nil {
		l.clock = calibration.SystemClock()
	}
	if l.strategy == nil {
		l.strategy = calibration.Default()
	}
	if m, ok := l.strategy.(*calibration.Manual); ok && m.Engine.Clock == nil {
		// The caller's strategy may be shared with other layers.
		own := *m
		own.Engine.Clock = l.clock
		l.strategy = &own
	}
	if l.frames == nil {
		l.frames = FrameCounterFunc(func() int { return int(l.frame.Load()) })
	}
	l.enabled.Store(o.enabled)
	return l
}

func (l *Layer) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return Logger()
}

// SetProfilingEnabled turns profiling on or off. Commands recorded while it
// is off are not timed.
func (l *Layer) SetProfilingEnabled(enabled bool) {
	l.enabled.Store(enabled)
}

// ProfilingEnabled reports the state of the profiling switch.
func (l *Layer) ProfilingEnabled() bool {
	return l.enabled.Load()
}

// AdvanceFrame increments the Layer's own frame counter and returns the new
// frame number. It has no effect on a FrameCounter given with
// WithFrameCounter.
func (l *Layer) AdvanceFrame() int {
	return int(l.frame.Add(1))
}

// Now reads the Layer's CPU counter. Use it to record frame starts for
// ResolveQueueResults.
func (l *Layer) Now() uint64 {
	return l.clock.Now()
}

// Strategy returns the calibration strategy in use.
func (l *Layer) Strategy() calibration.Strategy {
	return l.strategy
}

// Store returns the result store the Layer writes to.
func (l *Layer) Store() *store.Store {
	return l.store
}

// PreCall runs before the driver records id into cb. When the command is
// profiled it allocates a sample id and asks cb to start timing.
func (l *Layer) PreCall(thread measure.ThreadID, id funcid.FuncID, cb CommandBuffer) {
	if !l.enabled.Load() || cb == nil || !l.filter.ShouldProfile(id) {
		return
	}

	info := l.seq.Thread(thread)
	if !cb.IsProfilingEnabled() {
		info.Skip()
		return
	}
	sampleID := l.seq.Begin(info)
	mid := measure.MeasurementID{
		SampleID: sampleID,
		FuncID:   id,
		Frame:    l.frames.Frame(),
		CmdBuf:   cb.Handle(),
		Ordinal:  cb.FillCount(),
	}

	if err := cb.BeginCmdMeasurement(&mid); err != nil {
		l.log().Warn("frameprof: begin measurement failed",
			"thread", thread,
			"sample_id", sampleID,
			"cmd", id.String(),
			"err", err)
		return
	}
	info.MarkRunning()
}

// PostCall runs after the driver recorded id into cb. If the matching PreCall
// started a measurement it is ended, and entry is tagged with the sample id
// and indexed for lookup. A started measurement is ended even when profiling
// was switched off or cb stopped accepting measurements in between.
func (l *Layer) PostCall(thread measure.ThreadID, entry *measure.APIEntry, id funcid.FuncID, cb CommandBuffer) {
	if cb == nil || !l.filter.ShouldProfile(id) {
		return
	}

	info := l.seq.Thread(thread)
	state := info.State()
	if state == sequencer.StateIdle && !(l.enabled.Load() && cb.IsProfilingEnabled()) {
		return
	}
	sampleID, began := info.Finish()

	switch {
	case state == sequencer.StateSkipped:
		return
	case state == sequencer.StateIdle:
		l.log().Warn("frameprof: post-call without pre-call",
			"thread", thread,
			"cmd", id.String())
		return
	case !began:
		l.log().Warn("frameprof: end measurement skipped, begin was not successful",
			"thread", thread,
			"sample_id", sampleID,
			"cmd", id.String())
		return
	}

	if err := cb.EndCmdMeasurement(); err != nil {
		l.log().Warn("frameprof: end measurement failed",
			"thread", thread,
			"sample_id", sampleID,
			"cmd", id.String(),
			"err", err)
		return
	}

	if entry != nil {
		entry.SampleID = sampleID
		l.store.IndexEntry(thread, entry)
	}
}

// ClearProfilingResults drops every stored result and indexed entry.
// No thread may be recording or resolving results while it runs.
func (l *Layer) ClearProfilingResults() {
	l.store.Clear()
}

// FindInvocationBySampleID returns the API entry tagged with sampleID.
func (l *Layer) FindInvocationBySampleID(sampleID uint64) (*measure.APIEntry, bool) {
	return l.store.FindEntry(sampleID)
}

// FindResultBySampleID returns the stored result for sampleID.
func (l *Layer) FindResultBySampleID(sampleID uint64) (store.Located, bool) {
	return l.store.Find(sampleID)
}

// Results returns a snapshot of every stored result.
func (l *Layer) Results() []store.BucketSnapshot {
	return l.store.Snapshot()
}

// ResultsFor returns the results of one (thread, queue) pair in the order
// they were stored.
func (l *Layer) ResultsFor(thread measure.ThreadID, queue measure.QueueID) []measure.Result {
	return l.store.Results(thread, queue)
}
