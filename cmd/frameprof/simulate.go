package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/frameprof"
	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/export"
	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/internal/osthread"
	"github.com/gogpu/frameprof/internal/simgpu"
	"github.com/gogpu/frameprof/measure"
	"github.com/gogpu/frameprof/summary"
)

type simulateOptions struct {
	threads  int
	frames   int
	draws    int
	queues   int
	seed     uint64
	strategy string
	timeout  time.Duration
	faults   simgpu.Faults
	chrome   string
	pprof    string
	lang     string
	top      int
}

func newSimulateCmd() *cobra.Command {
	o := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Profile a synthetic workload on a simulated GPU",
		Long: `simulate records render passes from several threads against a simulated
GPU, resolves their timestamps through the profiling layer and prints a
per-command summary. The collected samples can be written as a Chrome trace
and as a pprof profile.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if o.threads < 1 || o.frames < 1 || o.queues < 1 {
				return errors.New("threads, frames and queues must be at least 1")
			}
			if o.draws < 0 {
				return errors.New("draws must not be negative")
			}
			for _, p := range []float64{o.faults.BeginFailure, o.faults.EndFailure, o.faults.EmptyTimestamp, o.faults.ReorderedTimestamp, o.faults.CalibrationStall} {
				if p < 0 || p > 1 {
					return fmt.Errorf("fault rate %v outside [0, 1]", p)
				}
			}
			if _, err := language.Parse(o.lang); err != nil {
				return fmt.Errorf("invalid language %q: %w", o.lang, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&o.threads, "threads", "t", 4, "recording threads")
	f.IntVarP(&o.frames, "frames", "n", 3, "frames to record")
	f.IntVarP(&o.draws, "draws", "d", 32, "draw calls per render pass")
	f.IntVarP(&o.queues, "queues", "q", 1, "GPU queues; threads are spread over them")
	f.Uint64Var(&o.seed, "seed", 1, "random seed of the simulated GPU")
	f.StringVar(&o.strategy, "strategy", calibration.NameManual, fmt.Sprintf("calibration strategy %v", calibration.Available()))
	f.DurationVar(&o.timeout, "timeout", 50*time.Millisecond, "calibration timeout")
	f.Float64Var(&o.faults.BeginFailure, "begin-fail", 0, "probability a measurement begin fails")
	f.Float64Var(&o.faults.EndFailure, "end-fail", 0, "probability a measurement end fails")
	f.Float64Var(&o.faults.EmptyTimestamp, "empty-ts", 0, "probability a result has an empty timestamp")
	f.Float64Var(&o.faults.ReorderedTimestamp, "reorder-ts", 0, "probability a result has reordered timestamps")
	f.Float64Var(&o.faults.CalibrationStall, "stall", 0, "probability a calibration never completes")
	f.StringVar(&o.chrome, "chrome", "", "write a Chrome trace to this file")
	f.StringVar(&o.pprof, "pprof", "", "write a pprof profile to this file")
	f.StringVar(&o.lang, "lang", "en", "language used to format numbers")
	f.IntVar(&o.top, "top", 10, "commands to list in the summary, 0 for all")
	return cmd
}

// simStats counts what happened to the recorded commands.
type simStats struct {
	recorded  atomic.Int64
	stored    atomic.Int64
	calFailed atomic.Int64
	submitted atomic.Int64
}

func runSimulate(ctx context.Context, out io.Writer, o simulateOptions) error {
	strategy, err := calibration.Lookup(o.strategy)
	if err != nil {
		return err
	}
	if m, ok := strategy.(*calibration.Manual); ok {
		m.Engine.Timeout = o.timeout
	}

	clock := calibration.SystemClock()
	dev := simgpu.New(simgpu.Config{Clock: clock, Seed: o.seed, Faults: o.faults})
	layer := frameprof.NewLayer(frameprof.WithClock(clock), frameprof.WithStrategy(strategy))

	queues := make([]*simgpu.Queue, o.queues)
	for i := range queues {
		queues[i] = dev.Queue(measure.QueueID(i))
	}

	var stats simStats
	frameStarts := make(map[int]uint64, o.frames)
	for frame := range o.frames {
		start := layer.Now()
		frameStarts[frame] = start

		g, gctx := errgroup.WithContext(ctx)
		for t := 0; t < o.threads; t++ {
			q := queues[t%len(queues)]
			g.Go(func() error {
				return recordThread(gctx, layer, dev, q, start, o.draws, &stats)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		layer.AdvanceFrame()
	}

	p := message.NewPrinter(language.Make(o.lang))
	printSummary(p, out, summary.FromSnapshot(layer.Results(), summary.WithTickFrequency(dev.Frequency())), &stats, o)

	tl := export.Timeline{
		Origin:       frameStarts[0],
		CPUFrequency: clock.Frequency(),
		FrameStarts:  frameStarts,
		Epoch:        time.Now(),
	}
	if o.chrome != "" {
		if err := writeFile(o.chrome, func(w io.Writer) error {
			return export.ChromeTrace(w, layer.Results(), layer.Store().Entries(), tl)
		}); err != nil {
			return fmt.Errorf("chrome trace: %w", err)
		}
		p.Fprintf(out, "chrome trace written to %s\n", o.chrome)
	}
	if o.pprof != "" {
		if err := writeFile(o.pprof, func(w io.Writer) error {
			return export.WritePProf(w, layer.Results(), export.WithTickFrequency(dev.Frequency()))
		}); err != nil {
			return fmt.Errorf("pprof: %w", err)
		}
		p.Fprintf(out, "pprof profile written to %s\n", o.pprof)
	}
	return nil
}

// pass is the command sequence of one render pass with n draws.
func pass(n int) []funcid.FuncID {
	ids := []funcid.FuncID{funcid.CmdPipelineBarrier, funcid.CmdBeginRenderPass, funcid.CmdBindPipeline, funcid.CmdSetViewport}
	for i := 0; i < n; i++ {
		ids = append(ids, funcid.CmdBindDescriptorSets, funcid.CmdBindVertexBuffers, funcid.CmdDrawIndexed)
	}
	return append(ids, funcid.CmdEndRenderPass)
}

func recordThread(ctx context.Context, layer *frameprof.Layer, dev *simgpu.Device, q *simgpu.Queue, frameStart uint64, draws int, stats *simStats) error {
	// Per-thread measurement state is keyed by OS thread id.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := osthread.Current()

	if err := ctx.Err(); err != nil {
		return err
	}

	cb := dev.NewCommandBuffer(true)
	for _, id := range pass(draws) {
		e := &measure.APIEntry{FuncID: id, ThreadID: tid, CPUStart: layer.Now()}
		layer.PreCall(tid, id, cb)
		cb.Record(id)
		layer.PostCall(tid, e, id, cb)
		e.CPUEnd = layer.Now()
		stats.recorded.Add(1)
	}

	raw := q.Submit(cb)
	stats.submitted.Add(int64(len(raw)))
	n, err := layer.ResolveQueueResults(ctx, q, tid, frameStart, raw)
	stats.stored.Add(int64(n))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.calFailed.Add(1)
	}
	return nil
}

func printSummary(p *message.Printer, out io.Writer, s summary.Summary, stats *simStats, o simulateOptions) {
	p.Fprintf(out, "%d frames, %d threads, %d queues\n", o.frames, o.threads, o.queues)
	p.Fprintf(out, "%d calls recorded, %d measured, %d stored, %d batches without calibration\n",
		stats.recorded.Load(), stats.submitted.Load(), stats.stored.Load(), stats.calFailed.Load())
	p.Fprintf(out, "total GPU time %.3f ms over %d samples\n\n", s.Total, s.Count)

	p.Fprintf(out, "%-26s %8s %12s %10s %10s %10s\n", "command", "count", "total ms", "mean ms", "min ms", "max ms")
	for i, st := range s.Stats {
		if o.top > 0 && i >= o.top {
			break
		}
		p.Fprintf(out, "%-26s %8d %12.3f %10.4f %10.4f %10.4f\n",
			st.FuncID.String(), st.Count, st.Total, st.Mean(), st.Min, st.Max)
	}
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
