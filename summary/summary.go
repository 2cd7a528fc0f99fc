// Package summary aggregates stored GPU results per command: how often each
// command ran and how much GPU time it took, optionally restricted to a
// frame or to a window of the frame timeline.
package summary

import (
	"cmp"
	"math"
	"slices"

	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/measure"
	"github.com/gogpu/frameprof/store"
)

// Stat is the aggregate of one command. Durations are in milliseconds.
type Stat struct {
	FuncID funcid.FuncID
	Count  int
	Total  float64
	Min    float64
	Max    float64
}

// Mean returns the average duration, or 0 for an empty Stat.
func (s Stat) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// Summary is the per-command breakdown of a set of results.
type Summary struct {
	// Stats are ordered by total time, largest first.
	Stats []Stat
	Count int
	Total float64
}

// Lookup returns the Stat of id.
func (s Summary) Lookup(id funcid.FuncID) (Stat, bool) {
	i := slices.IndexFunc(s.Stats, func(st Stat) bool { return st.FuncID == id })
	if i < 0 {
		return Stat{}, false
	}
	return s.Stats[i], true
}

// Option restricts or configures a Build.
type Option func(*config)

type config struct {
	frame     int
	hasFrame  bool
	from, to  float64
	hasWindow bool
	tickFreq  uint64
}

// WithFrame keeps only results recorded in frame.
func WithFrame(frame int) Option {
	return func(c *config) {
		c.frame = frame
		c.hasFrame = true
	}
}

// WithWindow keeps only results that lie entirely inside [from, to], in
// frame-relative milliseconds.
func WithWindow(from, to float64) Option {
	return func(c *config) {
		c.from, c.to = from, to
		c.hasWindow = true
	}
}

// WithTickFrequency lets results without an aligned time (for example under
// passthrough calibration) contribute their raw GPU duration.
func WithTickFrequency(freq uint64) Option {
	return func(c *config) {
		c.tickFreq = freq
	}
}

func (c *config) keep(r measure.Result) bool {
	if c.hasFrame && r.ID.Frame != c.frame {
		return false
	}
	if c.hasWindow && (r.Aligned.Start < c.from || r.Aligned.End > c.to) {
		return false
	}
	return true
}

func (c *config) duration(r measure.Result) float64 {
	if d := r.Aligned.Duration(); d > 0 {
		return d
	}
	if c.tickFreq > 0 {
		return float64(r.Clocks.Ticks()) * 1000 / float64(c.tickFreq)
	}
	return 0
}

// Build aggregates results.
func Build(results []measure.Result, opts ...Option) Summary {
	var c config
	for _, opt := range opts {
		opt(&c)
	}

	byID := make(map[funcid.FuncID]*Stat)
	var sum Summary
	for _, r := range results {
		if !c.keep(r) {
			continue
		}
		d := c.duration(r)
		st, ok := byID[r.ID.FuncID]
		if !ok {
			st = &Stat{FuncID: r.ID.FuncID, Min: math.Inf(1)}
			byID[r.ID.FuncID] = st
		}
		st.Count++
		st.Total += d
		st.Min = min(st.Min, d)
		st.Max = max(st.Max, d)
		sum.Count++
		sum.Total += d
	}

	sum.Stats = make([]Stat, 0, len(byID))
	for _, st := range byID {
		sum.Stats = append(sum.Stats, *st)
	}
	slices.SortFunc(sum.Stats, func(a, b Stat) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.FuncID, b.FuncID)
	})
	return sum
}

// FromSnapshot aggregates every result of a store snapshot.
func FromSnapshot(snap []store.BucketSnapshot, opts ...Option) Summary {
	var all []measure.Result
	for _, b := range snap {
		all = append(all, b.Results...)
	}
	return Build(all, opts...)
}
