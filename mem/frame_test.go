package mem

import "testing"

func TestPushPopRoundTrip(t *testing.T) {
	a := NewAllocator(16, 2)
	f, ok := a.Pop()
	if !ok {
		t.Fatal("pop failed on fresh allocator")
	}
	a.Push(f)
	f2, ok := a.Pop()
	if !ok || f2 != f {
		t.Fatalf("push(f); pop() should yield f back, got %v ok=%v", f2, ok)
	}
}

func TestOOMReportedNotRetried(t *testing.T) {
	a := NewAllocator(4, 0)
	var got []Frame
	for i := 0; i < 4; i++ {
		f, ok := a.Pop()
		if !ok {
			t.Fatalf("unexpected OOM at frame %d", i)
		}
		got = append(got, f)
	}
	if _, ok := a.Pop(); ok {
		t.Fatal("expected OOM once the reserve is exhausted")
	}
	for _, f := range got {
		a.Push(f)
	}
	if _, ok := a.Pop(); !ok {
		t.Fatal("expected to succeed again after pushing back all frames")
	}
}

func TestStatsInvariant(t *testing.T) {
	a := NewAllocator(100, 10)
	free, inuse, reserved := a.Stats()
	if free != 90 || inuse != 0 || reserved != 10 || free+inuse+reserved != 100 {
		t.Fatalf("bad initial stats: free=%d inuse=%d reserved=%d", free, inuse, reserved)
	}
	var popped []Frame
	for i := 0; i < 30; i++ {
		f, ok := a.Pop()
		if !ok {
			t.Fatal("unexpected OOM")
		}
		popped = append(popped, f)
	}
	free, inuse, reserved = a.Stats()
	if free != 60 || inuse != 30 || reserved != 10 || free+inuse+reserved != 100 {
		t.Fatalf("bad stats after 30 pops: free=%d inuse=%d reserved=%d", free, inuse, reserved)
	}
}

type fakeReclaimer struct {
	frame Frame
	used  bool
}

func (f *fakeReclaimer) ReclaimOne() (Frame, bool) {
	if f.used {
		return 0, false
	}
	f.used = true
	return f.frame, true
}

func TestPopReclaimingConsultsRegisteredReclaimers(t *testing.T) {
	a := NewAllocator(2, 0)
	f0, _ := a.Pop()
	_, _ = a.Pop()
	// Allocator is now exhausted; register a reclaimer that can give f0
	// back without it ever being Push'ed.
	r := &fakeReclaimer{frame: f0}
	Register(r)
	defer Unregister(r)

	got, ok := a.PopReclaiming()
	if !ok || got != f0 {
		t.Fatalf("expected reclaim to yield frame %v, got %v ok=%v", f0, got, ok)
	}
	if _, ok := a.PopReclaiming(); ok {
		t.Fatal("reclaimer is single-use; second reclaim should fail")
	}
}
