// Package sequencer assigns sample ids and tracks the begin/end pairing of
// in-flight measurements, one SampleInfo per application thread.
package sequencer

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/frameprof/measure"
)

const (
	// shardCount is the number of thread table shards.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	shardMask = shardCount - 1
)

// State is the measurement state of one thread.
type State uint8

const (
	StateIdle           State = iota // no measurement in flight
	StateBeginRequested              // sample id allocated, hardware begin pending
	StateRunning                     // hardware begin succeeded
	StateSkipped                     // command passed the filter but its command buffer could not time it
)

var stateNames = [...]string{
	StateIdle:           "Idle",
	StateBeginRequested: "BeginRequested",
	StateRunning:        "Running",
	StateSkipped:        "Skipped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// SampleInfo is one thread's in-flight measurement.
//
// A SampleInfo is only read and written by the thread it belongs to, so its
// fields are not synchronized.
type SampleInfo struct {
	ThreadID       measure.ThreadID
	SampleID       uint64
	BeginSucceeded bool
	state          State
}

// State returns the current measurement state.
func (s *SampleInfo) State() State { return s.state }

// MarkRunning records that the hardware begin request succeeded.
func (s *SampleInfo) MarkRunning() {
	s.BeginSucceeded = true
	s.state = StateRunning
}

// Skip records that the current command is not timed even though the
// layer would have profiled it. No sample id is allocated.
func (s *SampleInfo) Skip() {
	s.SampleID = 0
	s.BeginSucceeded = false
	s.state = StateSkipped
}

// Finish returns the thread to Idle. It reports the sample id of the
// measurement being closed and whether its begin had succeeded.
func (s *SampleInfo) Finish() (uint64, bool) {
	ok := s.BeginSucceeded
	s.BeginSucceeded = false
	s.state = StateIdle
	return s.SampleID, ok
}

// Sequencer hands out session-unique sample ids and owns the per-thread
// SampleInfo table. The table is split into shards to keep lock contention
// low when many threads record at once.
type Sequencer struct {
	shards [shardCount]*shard
	next   atomic.Uint64
}

type shard struct {
	mu      sync.RWMutex
	threads map[measure.ThreadID]*SampleInfo
}

// New creates an empty Sequencer. The first id it hands out is 1.
func New() *Sequencer {
	s := &Sequencer{}
	for i := range s.shards {
		s.shards[i] = &shard{threads: make(map[measure.ThreadID]*SampleInfo)}
	}
	return s
}

func (s *Sequencer) shardFor(id measure.ThreadID) *shard {
	return s.shards[uint64(id)&shardMask]
}

// Thread returns the SampleInfo for id, creating it on first use.
func (s *Sequencer) Thread(id measure.ThreadID) *SampleInfo {
	sh := s.shardFor(id)

	// Fast path: read lock for the common already-created case
	sh.mu.RLock()
	info, ok := sh.threads[id]
	sh.mu.RUnlock()
	if ok {
		return info
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Re-check after acquiring write lock
	if info, ok = sh.threads[id]; ok {
		return info
	}
	info = &SampleInfo{ThreadID: id}
	sh.threads[id] = info
	return info
}

// Begin allocates the next sample id for info and moves it to
// BeginRequested. Any earlier unfinished measurement on the thread is
// abandoned.
func (s *Sequencer) Begin(info *SampleInfo) uint64 {
	id := s.NextSampleID()
	info.SampleID = id
	info.BeginSucceeded = false
	info.state = StateBeginRequested
	return id
}

// NextSampleID returns the next id. Ids are strictly increasing across the
// whole session, so they are also strictly increasing per thread.
func (s *Sequencer) NextSampleID() uint64 {
	return s.next.Add(1)
}

// Threads returns the number of threads seen so far.
func (s *Sequencer) Threads() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.threads)
		sh.mu.RUnlock()
	}
	return n
}
