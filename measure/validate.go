package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrEmptyTimestamp is reported when any raw clock is zero.
	ErrEmptyTimestamp = errors.New("measure: empty timestamp")

	// ErrTimestampOrder is reported when PreStart <= Start <= End does not hold.
	ErrTimestampOrder = errors.New("measure: timestamps out of order")
)

// Check applies the admission rules to r and returns every violated rule,
// joined. It returns nil for an admissible result.
func Check(r Result) error {
	var errs []error
	c := r.Clocks
	if c.PreStart == 0 || c.Start == 0 || c.End == 0 {
		errs = append(errs, ErrEmptyTimestamp)
	}
	if c.PreStart > c.Start || c.PreStart > c.End || c.Start > c.End {
		errs = append(errs, ErrTimestampOrder)
	}
	return errors.Join(errs...)
}

// Validate reports whether r may enter the result store. Each violated rule
// is logged separately at error level with the full sample context.
func Validate(logger *slog.Logger, r Result) bool {
	err := Check(r)
	if err == nil {
		return true
	}
	if logger == nil {
		return false
	}
	if errors.Is(err, ErrEmptyTimestamp) {
		logRejection(logger, "detected empty timestamp", r)
	}
	if errors.Is(err, ErrTimestampOrder) {
		logRejection(logger, "detected (start>end) timestamp", r)
	}
	return false
}

func logRejection(logger *slog.Logger, msg string, r Result) {
	logger.LogAttrs(context.Background(), slog.LevelError, msg,
		slog.Uint64("pre_start", r.Clocks.PreStart),
		slog.Uint64("start", r.Clocks.Start),
		slog.Uint64("end", r.Clocks.End),
		slog.Uint64("sample_id", r.ID.SampleID),
		slog.Int("frame", r.ID.Frame),
		slog.String("cmd", r.ID.FuncID.String()),
		slog.String("cmd_buf", formatHandle(r.ID.CmdBuf)),
		slog.Int("measurement_num", r.ID.Ordinal),
		slog.Int("measurement_count", r.MeasurementCount),
	)
}

func formatHandle(h uintptr) string {
	return fmt.Sprintf("%#x", h)
}
