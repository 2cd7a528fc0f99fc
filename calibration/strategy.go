package calibration

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/frameprof/measure"
)

// Strategy name constants.
const (
	NameManual      = "manual"
	NamePassthrough = "passthrough"
)

// Strategy decides how GPU samples are placed on the CPU timeline.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Collect obtains a calibration pair for src.
	Collect(ctx context.Context, src Source) (Pair, error)

	// Align fills r.Aligned from its raw clocks.
	Align(r *measure.Result, p Pair, frameStart uint64) error
}

// Manual submits a calibration workload per batch and aligns every sample.
type Manual struct {
	Engine Engine
}

func (m *Manual) Name() string { return NameManual }

func (m *Manual) Collect(ctx context.Context, src Source) (Pair, error) {
	return m.Engine.Collect(ctx, src)
}

func (m *Manual) Align(r *measure.Result, p Pair, frameStart uint64) error {
	return Align(r, p, frameStart)
}

// Passthrough disables calibration: nothing is submitted and results keep
// a zero aligned time.
type Passthrough struct{}

func (Passthrough) Name() string { return NamePassthrough }

func (Passthrough) Collect(context.Context, Source) (Pair, error) { return Pair{}, nil }

func (Passthrough) Align(*measure.Result, Pair, uint64) error { return nil }

var strategies = gpucontext.NewRegistry[Strategy](
	gpucontext.WithPriority(NameManual, NamePassthrough),
)

func init() {
	Register(NameManual, func() Strategy { return &Manual{} })
	Register(NamePassthrough, func() Strategy { return Passthrough{} })
}

// Register adds a strategy factory under name, replacing any previous one.
func Register(name string, factory func() Strategy) {
	strategies.Register(name, factory)
}

// Lookup returns a fresh strategy registered under name.
func Lookup(name string) (Strategy, error) {
	if !strategies.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return strategies.Get(name), nil
}

// Default returns the highest-priority registered strategy, manual
// calibration unless it was unregistered.
func Default() Strategy {
	return strategies.Best()
}

// Available lists the registered strategy names.
func Available() []string {
	return strategies.Available()
}
