package frameprof

import (
	"context"
	"fmt"

	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/measure"
)

// CollectCalibration takes a calibration pair for q with the Layer's
// strategy. A failure is logged and returned; the caller drops the batch the
// pair was meant for.
func (l *Layer) CollectCalibration(ctx context.Context, q Queue) (calibration.Pair, error) {
	pair, err := l.strategy.Collect(ctx, q)
	if err != nil {
		info := q.Describe()
		l.log().Warn("frameprof: calibration unavailable",
			"queue", q.ID(),
			"label", info.Label,
			"adapter", info.Adapter.Name,
			"strategy", l.strategy.Name(),
			"err", err)
		return calibration.Pair{}, fmt.Errorf("frameprof: calibrate queue %d: %w", q.ID(), err)
	}
	return pair, nil
}

// VerifyAlignAndStore validates every result, normalizes zero-length
// durations, aligns it with pair relative to frameStart and stores it under
// (thread, queue). Rejected results are logged and skipped. It returns the
// number of results stored.
func (l *Layer) VerifyAlignAndStore(queue measure.QueueID, results []measure.Result, pair calibration.Pair, thread measure.ThreadID, frameStart uint64) int {
	logger := l.log()
	bucket := l.store.FindOrCreate(queue, thread)

	stored := 0
	for _, r := range results {
		if !measure.Validate(logger, r) {
			continue
		}
		r.NormalizeZeroDuration()
		if err := l.strategy.Align(&r, pair, frameStart); err != nil {
			logger.Warn("frameprof: dropping unalignable sample",
				"sample_id", r.ID.SampleID,
				"frame", r.ID.Frame,
				"cmd", r.ID.FuncID.String(),
				"start", r.Clocks.Start,
				"end", r.Clocks.End,
				"err", err)
			continue
		}
		bucket.Put(r.ID.SampleID, r)
		stored++
	}
	return stored
}

// ResolveQueueResults calibrates q and then verifies, aligns and stores
// results. When calibration fails the whole batch is dropped and the error
// is returned.
func (l *Layer) ResolveQueueResults(ctx context.Context, q Queue, thread measure.ThreadID, frameStart uint64, results []measure.Result) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	pair, err := l.CollectCalibration(ctx, q)
	if err != nil {
		l.log().Warn("frameprof: dropping batch",
			"queue", q.ID(),
			"thread", thread,
			"results", len(results))
		return 0, err
	}
	return l.VerifyAlignAndStore(q.ID(), results, pair, thread, frameStart), nil
}
