package store

import (
	"sync"
	"testing"

	"github.com/gogpu/frameprof/funcid"
	"github.com/gogpu/frameprof/measure"
)

func sample(id uint64) measure.Result {
	return measure.Result{
		ID:     measure.MeasurementID{SampleID: id, FuncID: funcid.CmdDraw},
		Clocks: measure.RawClocks{PreStart: id, Start: id + 1, End: id + 2},
	}
}

func TestFindOrCreateReturnsSameBucket(t *testing.T) {
	s := New()
	a := s.FindOrCreate(1, 10)
	b := s.FindOrCreate(1, 10)
	if a != b {
		t.Fatal("FindOrCreate returned different buckets for the same key")
	}
	if c := s.FindOrCreate(2, 10); c == a {
		t.Fatal("different queues share a bucket")
	}
	if c := s.FindOrCreate(1, 11); c == a {
		t.Fatal("different threads share a bucket")
	}
}

func TestPutAndInsertionOrder(t *testing.T) {
	s := New()
	for _, id := range []uint64{5, 3, 9, 1} {
		s.Put(1, 1, id, sample(id))
	}
	got := s.Results(1, 1)
	want := []uint64{5, 3, 9, 1}
	if len(got) != len(want) {
		t.Fatalf("len(Results) = %d, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.ID.SampleID != want[i] {
			t.Errorf("Results[%d].SampleID = %d, want %d", i, r.ID.SampleID, want[i])
		}
	}
	if s.Results(1, 2) != nil {
		t.Error("Results for unknown queue should be nil")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := New()
	s.Put(1, 1, 4, sample(4))
	s.Put(1, 1, 5, sample(5))

	replaced := sample(4)
	replaced.Aligned = measure.AlignedMillis{Start: 1, End: 2}
	s.Put(1, 1, 4, replaced)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	got := s.Results(1, 1)
	if got[0].ID.SampleID != 4 || got[0].Aligned.End != 2 {
		t.Errorf("overwrite lost position or value: %+v", got[0])
	}
}

func TestConcurrentStoreExclusivity(t *testing.T) {
	s := New()
	const writers = 64
	const perWriter = 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			thread := measure.ThreadID(w % 8)
			queue := measure.QueueID(w % 3)
			for i := range perWriter {
				id := uint64(w*perWriter + i + 1)
				s.Put(queue, thread, id, sample(id))
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != writers*perWriter {
		t.Fatalf("Len() = %d, want %d", s.Len(), writers*perWriter)
	}
	for id := uint64(1); id <= writers*perWriter; id++ {
		loc, ok := s.Find(id)
		if !ok {
			t.Fatalf("sample %d lost", id)
		}
		if loc.Result.ID.SampleID != id {
			t.Fatalf("Find(%d) returned sample %d", id, loc.Result.ID.SampleID)
		}
	}
}

func TestFind(t *testing.T) {
	s := New()
	s.Put(7, 3, 42, sample(42))

	loc, ok := s.Find(42)
	if !ok {
		t.Fatal("Find(42) not found")
	}
	if loc.Thread != 3 || loc.Queue != 7 {
		t.Errorf("Find(42) located at thread=%d queue=%d, want 3/7", loc.Thread, loc.Queue)
	}
	if _, ok := s.Find(43); ok {
		t.Error("Find(43) found a sample that was never stored")
	}
}

func TestClearCompleteness(t *testing.T) {
	s := New()
	b := s.FindOrCreate(1, 1)
	for id := uint64(1); id <= 20; id++ {
		s.Put(measure.QueueID(id%2), measure.ThreadID(id%4), id, sample(id))
		s.IndexEntry(measure.ThreadID(id%4), &measure.APIEntry{SampleID: id})
	}

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
	for id := uint64(1); id <= 20; id++ {
		if _, ok := s.Find(id); ok {
			t.Errorf("Find(%d) succeeded after Clear", id)
		}
		if _, ok := s.FindEntry(id); ok {
			t.Errorf("FindEntry(%d) succeeded after Clear", id)
		}
	}
	if len(s.Snapshot()) != 0 {
		t.Error("Snapshot not empty after Clear")
	}
	if b.Len() != 0 {
		t.Error("bucket obtained before Clear still holds results")
	}

	// A stale bucket forwards to the live one.
	b.Put(99, sample(99))
	if got := s.Results(1, 1); len(got) != 1 || got[0].ID.SampleID != 99 {
		t.Errorf("Results after stale put = %+v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestSnapshotOrder(t *testing.T) {
	s := New()
	s.Put(2, 2, 1, sample(1))
	s.Put(1, 2, 2, sample(2))
	s.Put(5, 1, 3, sample(3))
	s.FindOrCreate(9, 9) // empty buckets are skipped

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot) = %d, want 3", len(snap))
	}
	keys := [][2]uint64{{1, 5}, {2, 1}, {2, 2}}
	for i, b := range snap {
		if uint64(b.Thread) != keys[i][0] || uint64(b.Queue) != keys[i][1] {
			t.Errorf("Snapshot[%d] = thread %d queue %d, want %v", i, b.Thread, b.Queue, keys[i])
		}
	}
}

func TestEntries(t *testing.T) {
	s := New()
	e1 := &measure.APIEntry{SampleID: 2, FuncID: funcid.CmdDraw}
	e2 := &measure.APIEntry{SampleID: 1, FuncID: funcid.CmdDispatch}
	s.IndexEntry(1, e1)
	s.IndexEntry(2, e2)
	s.IndexEntry(3, nil)

	got, ok := s.FindEntry(2)
	if !ok || got != e1 {
		t.Fatalf("FindEntry(2) = %v, %v", got, ok)
	}
	all := s.Entries()
	if len(all) != 2 || all[0] != e2 || all[1] != e1 {
		t.Errorf("Entries() not ordered by sample id: %v", all)
	}
}
