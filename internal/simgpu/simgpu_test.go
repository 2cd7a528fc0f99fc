package simgpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/frameprof"
	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/measure"
)

// stepClock is a CPU clock at 1 GHz that the test advances by hand.
type stepClock struct{ now uint64 }

func (c *stepClock) Now() uint64       { return c.now }
func (c *stepClock) Frequency() uint64 { return 1_000_000_000 }

func record(t *testing.T, cb *CommandBuffer, ids ...funcid.FuncID) {
	t.Helper()
	for i, id := range ids {
		mid := &measure.MeasurementID{SampleID: uint64(i + 1), FuncID: id, Ordinal: cb.FillCount()}
		if err := cb.BeginCmdMeasurement(mid); err != nil {
			t.Fatalf("BeginCmdMeasurement: %v", err)
		}
		cb.Record(id)
		if err := cb.EndCmdMeasurement(); err != nil {
			t.Fatalf("EndCmdMeasurement: %v", err)
		}
	}
}

func TestNow(t *testing.T) {
	clk := &stepClock{now: 2_500_000_000}
	d := New(Config{Clock: clk, Frequency: 1000, Offset: 7})
	if got := d.Now(); got != 7+2500 {
		t.Errorf("Now() = %d, want %d", got, 7+2500)
	}
}

func TestSubmitProducesValidClocks(t *testing.T) {
	d := New(Config{Clock: &stepClock{now: 1_000_000}, Seed: 1})
	q := d.Queue(1)
	cb := d.NewCommandBuffer(true)
	record(t, cb, funcid.CmdDraw, funcid.CmdDispatch, funcid.CmdCopyBuffer)

	res := q.Submit(cb)
	if len(res) != 3 {
		t.Fatalf("len(res) = %d, want 3", len(res))
	}
	var prevEnd uint64
	for i, r := range res {
		if err := measure.Check(r); err != nil {
			t.Errorf("res[%d] %+v: %v", i, r.Clocks, err)
		}
		if r.Clocks.Start < prevEnd {
			t.Errorf("res[%d] overlaps previous command", i)
		}
		if r.MeasurementCount != 3 {
			t.Errorf("res[%d].MeasurementCount = %d", i, r.MeasurementCount)
		}
		prevEnd = r.Clocks.End
	}

	// The next submission starts after this one.
	cb.Reset()
	record(t, cb, funcid.CmdDraw)
	next := q.Submit(cb)
	if next[0].Clocks.PreStart < prevEnd {
		t.Errorf("second submission starts at %d before %d", next[0].Clocks.PreStart, prevEnd)
	}
}

func TestDeterministic(t *testing.T) {
	run := func() []measure.Result {
		d := New(Config{Clock: &stepClock{now: 42}, Seed: 99})
		cb := d.NewCommandBuffer(true)
		record(t, cb, funcid.CmdDraw, funcid.CmdDrawIndexed, funcid.CmdDispatch)
		return d.Queue(0).Submit(cb)
	}
	a, b := run(), run()
	for i := range a {
		if a[i].Clocks != b[i].Clocks {
			t.Fatalf("run differs at %d: %+v vs %+v", i, a[i].Clocks, b[i].Clocks)
		}
	}
}

func TestEmptyMeasurementIsZeroLength(t *testing.T) {
	d := New(Config{Clock: &stepClock{now: 1}})
	cb := d.NewCommandBuffer(true)
	_ = cb.BeginCmdMeasurement(&measure.MeasurementID{SampleID: 1})
	_ = cb.EndCmdMeasurement()

	r := d.Queue(0).Submit(cb)[0]
	if r.Clocks.Start != r.Clocks.End {
		t.Errorf("clocks = %+v, want Start == End", r.Clocks)
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name   string
		faults Faults
		check  func(t *testing.T, cb *CommandBuffer, q *Queue)
	}{
		{
			name:   "begin failure",
			faults: Faults{BeginFailure: 1},
			check: func(t *testing.T, cb *CommandBuffer, _ *Queue) {
				err := cb.BeginCmdMeasurement(&measure.MeasurementID{})
				if !errors.Is(err, ErrInjected) {
					t.Errorf("error = %v, want ErrInjected", err)
				}
			},
		},
		{
			name:   "end failure leaves end empty",
			faults: Faults{EndFailure: 1},
			check: func(t *testing.T, cb *CommandBuffer, q *Queue) {
				_ = cb.BeginCmdMeasurement(&measure.MeasurementID{})
				cb.Record(funcid.CmdDraw)
				if err := cb.EndCmdMeasurement(); !errors.Is(err, ErrInjected) {
					t.Fatalf("error = %v, want ErrInjected", err)
				}
				r := q.Submit(cb)[0]
				if !errors.Is(measure.Check(r), measure.ErrEmptyTimestamp) {
					t.Errorf("clocks %+v not rejected as empty", r.Clocks)
				}
			},
		},
		{
			name:   "empty timestamp",
			faults: Faults{EmptyTimestamp: 1},
			check: func(t *testing.T, cb *CommandBuffer, q *Queue) {
				record(t, cb, funcid.CmdDraw)
				if r := q.Submit(cb)[0]; r.Clocks.PreStart != 0 {
					t.Errorf("PreStart = %d, want 0", r.Clocks.PreStart)
				}
			},
		},
		{
			name:   "reordered timestamp",
			faults: Faults{ReorderedTimestamp: 1},
			check: func(t *testing.T, cb *CommandBuffer, q *Queue) {
				record(t, cb, funcid.CmdDispatch)
				r := q.Submit(cb)[0]
				if !errors.Is(measure.Check(r), measure.ErrTimestampOrder) {
					t.Errorf("clocks %+v not rejected as out of order", r.Clocks)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Clock: &stepClock{now: 1000}, Faults: tt.faults})
			tt.check(t, d.NewCommandBuffer(true), d.Queue(0))
		})
	}
}

func TestCalibrationStall(t *testing.T) {
	d := New(Config{Clock: &stepClock{now: 1}, Faults: Faults{CalibrationStall: 1}})
	e := &calibration.Engine{Timeout: 5 * time.Millisecond, PollInterval: time.Millisecond}
	_, err := e.Collect(context.Background(), d.Queue(0))
	if !errors.Is(err, calibration.ErrCalibrationTimeout) {
		t.Fatalf("Collect() error = %v, want ErrCalibrationTimeout", err)
	}
}

func TestLayerEndToEnd(t *testing.T) {
	clk := &stepClock{now: 10_000_000}
	d := New(Config{Clock: clk, Frequency: 1_000_000, Offset: 500, Seed: 3})
	q := d.Queue(2)
	layer := frameprof.NewLayer(frameprof.WithClock(clk))

	frameStart := layer.Now()
	cb := d.NewCommandBuffer(true)
	var entries []*measure.APIEntry
	for _, id := range []funcid.FuncID{funcid.CmdBeginRenderPass, funcid.CmdBindPipeline, funcid.CmdDraw, funcid.CmdEndRenderPass} {
		e := &measure.APIEntry{FuncID: id}
		layer.PreCall(1, id, cb)
		cb.Record(id)
		layer.PostCall(1, e, id, cb)
		entries = append(entries, e)
	}
	raw := q.Submit(cb)
	clk.now += 5_000_000

	n, err := layer.ResolveQueueResults(context.Background(), q, 1, frameStart, raw)
	if err != nil {
		t.Fatalf("ResolveQueueResults() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("stored %d results, want 3", n)
	}

	var prev float64
	for _, e := range entries {
		if e.FuncID == funcid.CmdBindPipeline {
			if e.SampleID != 0 {
				t.Error("bind pipeline was profiled")
			}
			continue
		}
		loc, ok := layer.FindResultBySampleID(e.SampleID)
		if !ok {
			t.Fatalf("no result for %s", e.FuncID)
		}
		a := loc.Result.Aligned
		if a.Start < prev || a.End <= a.Start {
			t.Errorf("%s aligned %+v after %v", e.FuncID, a, prev)
		}
		prev = a.End
	}
}
