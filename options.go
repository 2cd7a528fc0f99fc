package frameprof

import (
	"log/slog"

	"github.com/gogpu/frameprof/calibration"
	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/store"
)

// Option configures a Layer during creation.
//
// Example:
//
//	layer := frameprof.NewLayer(
//	    frameprof.WithStrategy(calibration.Passthrough{}),
//	    frameprof.WithEnabled(false),
//	)
type Option func(*layerOptions)

type layerOptions struct {
	logger   *slog.Logger
	filter   *funcid.Filter
	strategy calibration.Strategy
	frames   FrameCounter
	store    *store.Store
	clock    calibration.Clock
	enabled  bool
}

func defaultOptions() layerOptions {
	return layerOptions{
		filter:  funcid.DefaultFilter(),
		enabled: true,
	}
}

// WithLogger sets the logger of the Layer. Without it the Layer logs through
// the package-wide logger (see SetLogger).
func WithLogger(l *slog.Logger) Option {
	return func(o *layerOptions) {
		o.logger = l
	}
}

// WithFilter replaces the default profiling policy.
func WithFilter(f *funcid.Filter) Option {
	return func(o *layerOptions) {
		if f != nil {
			o.filter = f
		}
	}
}

// WithStrategy selects how results are placed on the CPU timeline.
// The default is calibration.Default(), manual calibration. A
// *calibration.Manual whose engine has no clock is copied and the copy uses
// the layer clock; s itself is not modified.
func WithStrategy(s calibration.Strategy) Option {
	return func(o *layerOptions) {
		o.strategy = s
	}
}

// WithFrameCounter supplies the current frame number for new measurements.
// Without it the Layer counts frames itself (see Layer.AdvanceFrame).
func WithFrameCounter(fc FrameCounter) Option {
	return func(o *layerOptions) {
		o.frames = fc
	}
}

// WithStore makes the Layer write into s instead of a private store.
func WithStore(s *store.Store) Option {
	return func(o *layerOptions) {
		o.store = s
	}
}

// WithClock sets the CPU counter used for frame start readings and, for
// manual calibration without a clock of its own, for calibration pairs.
func WithClock(c calibration.Clock) Option {
	return func(o *layerOptions) {
		o.clock = c
	}
}

// WithEnabled sets the initial state of the profiling switch.
func WithEnabled(enabled bool) Option {
	return func(o *layerOptions) {
		o.enabled = enabled
	}
}
