package export

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/frameprof/store"
)

// Span attribute keys.
const (
	AttrSampleID = attribute.Key("frameprof.sample_id")
	AttrCommand  = attribute.Key("frameprof.command")
	AttrFrame    = attribute.Key("frameprof.frame")
	AttrThread   = attribute.Key("frameprof.thread")
	AttrQueue    = attribute.Key("frameprof.queue")
)

type frameKey struct {
	queue uint64
	frame int
}

// Spans emits every GPU result as a span with its real start and end time.
// Results are grouped under one parent span per (queue, frame) that covers
// its children. It returns the number of command spans emitted.
func Spans(ctx context.Context, tracer trace.Tracer, snap []store.BucketSnapshot, tl Timeline) int {
	type group struct {
		start, end float64
		children   []func(context.Context)
	}
	groups := make(map[frameKey]*group)
	var order []frameKey

	n := 0
	for _, b := range snap {
		for _, r := range b.Results {
			start, dur := tl.gpuSpan(r)
			key := frameKey{queue: uint64(b.Queue), frame: r.ID.Frame}
			g, ok := groups[key]
			if !ok {
				g = &group{start: start, end: start + dur}
				groups[key] = g
				order = append(order, key)
			}
			g.start = min(g.start, start)
			g.end = max(g.end, start+dur)

			attrs := []attribute.KeyValue{
				AttrSampleID.Int64(int64(r.ID.SampleID)),
				AttrCommand.String(r.ID.FuncID.String()),
				AttrFrame.Int(r.ID.Frame),
				AttrThread.Int64(int64(b.Thread)),
				AttrQueue.Int64(int64(b.Queue)),
			}
			name := r.ID.FuncID.String()
			g.children = append(g.children, func(ctx context.Context) {
				_, span := tracer.Start(ctx, name,
					trace.WithTimestamp(tl.wallTime(start)),
					trace.WithAttributes(attrs...),
				)
				span.End(trace.WithTimestamp(tl.wallTime(start + dur)))
			})
			n++
		}
	}

	for _, key := range order {
		g := groups[key]
		frameCtx, span := tracer.Start(ctx, fmt.Sprintf("frame %d", key.frame),
			trace.WithTimestamp(tl.wallTime(g.start)),
			trace.WithAttributes(
				AttrFrame.Int(key.frame),
				AttrQueue.Int64(int64(key.queue)),
			),
		)
		for _, emit := range g.children {
			emit(frameCtx)
		}
		span.End(trace.WithTimestamp(tl.wallTime(g.end)))
	}
	return n
}
