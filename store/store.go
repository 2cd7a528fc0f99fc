// Package store holds the profiling results of a session.
//
// Results are kept per application thread, then per GPU queue, then per
// sample id. Every (thread, queue) bucket remembers insertion order so that
// collaborators can enumerate results in the order they were produced.
//
// A Store owns its results by value. Clear releases everything at once; the
// caller must ensure no producer or reader is active while it runs.
package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gogpu/frameprof/measure"
)

// Store is the session result aggregate. It is safe for concurrent use:
// structural changes and insertions take an exclusive lock, lookups and
// scans take a shared one.
type Store struct {
	mu      sync.RWMutex
	threads map[measure.ThreadID]map[measure.QueueID]*Bucket
	entries map[measure.ThreadID]map[uint64]*measure.APIEntry
	count   int
}

// Bucket is the result map of one (thread, queue) pair.
type Bucket struct {
	store  *Store
	thread measure.ThreadID
	queue  measure.QueueID
	index  map[uint64]int
	items  []measure.Result
}

// Located is a result together with the keys it is stored under.
type Located struct {
	Thread measure.ThreadID
	Queue  measure.QueueID
	Result measure.Result
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		threads: make(map[measure.ThreadID]map[measure.QueueID]*Bucket),
		entries: make(map[measure.ThreadID]map[uint64]*measure.APIEntry),
	}
}

// FindOrCreate returns the bucket for (queue, thread), creating it if needed.
func (s *Store) FindOrCreate(queue measure.QueueID, thread measure.ThreadID) *Bucket {
	s.mu.RLock()
	b := s.threads[thread][queue]
	s.mu.RUnlock()
	if b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreateLocked(queue, thread)
}

func (s *Store) findOrCreateLocked(queue measure.QueueID, thread measure.ThreadID) *Bucket {
	queues, ok := s.threads[thread]
	if !ok {
		queues = make(map[measure.QueueID]*Bucket)
		s.threads[thread] = queues
	}
	b := queues[queue]
	if b == nil {
		b = &Bucket{
			store:  s,
			thread: thread,
			queue:  queue,
			index:  make(map[uint64]int),
		}
		queues[queue] = b
	}
	return b
}

// Put stores r under (queue, thread, sampleID), replacing any previous result
// with the same key.
func (s *Store) Put(queue measure.QueueID, thread measure.ThreadID, sampleID uint64, r measure.Result) {
	s.FindOrCreate(queue, thread).Put(sampleID, r)
}

// Put stores r under sampleID. A result already stored under the same id is
// replaced in place and keeps its position in insertion order.
func (b *Bucket) Put(sampleID uint64, r measure.Result) {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// A bucket dropped by Clear forwards to the live one for its key.
	if s.threads[b.thread][b.queue] != b {
		b = s.findOrCreateLocked(b.queue, b.thread)
	}

	if i, ok := b.index[sampleID]; ok {
		b.items[i] = r
		return
	}
	b.index[sampleID] = len(b.items)
	b.items = append(b.items, r)
	s.count++
}

// Get returns the result stored under sampleID.
func (b *Bucket) Get(sampleID uint64) (measure.Result, bool) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	i, ok := b.index[sampleID]
	if !ok {
		return measure.Result{}, false
	}
	return b.items[i], true
}

// Len returns the number of results in the bucket.
func (b *Bucket) Len() int {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return len(b.items)
}

// Results returns a copy of the bucket's results in insertion order.
func (b *Bucket) Results() []measure.Result {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	return slices.Clone(b.items)
}

// Results returns the results of (thread, queue) in insertion order, or nil
// when nothing was stored for the pair.
func (s *Store) Results(thread measure.ThreadID, queue measure.QueueID) []measure.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.threads[thread][queue]
	if b == nil {
		return nil
	}
	return slices.Clone(b.items)
}

// Find scans every bucket for sampleID and returns the first match.
func (s *Store) Find(sampleID uint64) (Located, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for thread, queues := range s.threads {
		for queue, b := range queues {
			if i, ok := b.index[sampleID]; ok {
				return Located{Thread: thread, Queue: queue, Result: b.items[i]}, true
			}
		}
	}
	return Located{}, false
}

// Len returns the total number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// BucketSnapshot is a copy of one bucket.
type BucketSnapshot struct {
	Thread  measure.ThreadID
	Queue   measure.QueueID
	Results []measure.Result
}

// Snapshot copies every non-empty bucket, ordered by thread then queue.
// Results inside a bucket keep insertion order.
func (s *Store) Snapshot() []BucketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []BucketSnapshot
	for thread, queues := range s.threads {
		for queue, b := range queues {
			if len(b.items) == 0 {
				continue
			}
			out = append(out, BucketSnapshot{
				Thread:  thread,
				Queue:   queue,
				Results: slices.Clone(b.items),
			})
		}
	}
	slices.SortFunc(out, func(a, b BucketSnapshot) int {
		if c := cmp.Compare(a.Thread, b.Thread); c != 0 {
			return c
		}
		return cmp.Compare(a.Queue, b.Queue)
	})
	return out
}

// IndexEntry records e under (thread, e.SampleID) for later correlation.
// The store does not take ownership of e.
func (s *Store) IndexEntry(thread measure.ThreadID, e *measure.APIEntry) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[thread]
	if !ok {
		m = make(map[uint64]*measure.APIEntry)
		s.entries[thread] = m
	}
	m[e.SampleID] = e
}

// FindEntry returns the API entry indexed under sampleID on any thread.
func (s *Store) FindEntry(sampleID uint64) (*measure.APIEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.entries {
		if e, ok := m[sampleID]; ok {
			return e, true
		}
	}
	return nil, false
}

// Entries returns every indexed API entry, ordered by sample id.
func (s *Store) Entries() []*measure.APIEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*measure.APIEntry
	for _, m := range s.entries {
		for _, e := range m {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *measure.APIEntry) int {
		return cmp.Compare(a.SampleID, b.SampleID)
	})
	return out
}

// Clear drops every result and every indexed entry.
//
// No other goroutine may produce or read results while Clear runs; callers
// stop profiling and drain outstanding work first.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, queues := range s.threads {
		for _, b := range queues {
			b.index = make(map[uint64]int)
			b.items = nil
		}
	}
	s.threads = make(map[measure.ThreadID]map[measure.QueueID]*Bucket)
	s.entries = make(map[measure.ThreadID]map[uint64]*measure.APIEntry)
	s.count = 0
}
