package vm

import (
	"testing"

	"dennix/mem"
)

func TestSegmentListAddRemoveCoalesce(t *testing.T) {
	var l SegmentList
	if err := l.AddSegment(0x1000, 0x1000, ProtRead, 0); err != 0 {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := l.AddSegment(0x2000, 0x1000, ProtRead, 0); err != 0 {
		t.Fatalf("AddSegment adjacent: %v", err)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Adjacent same-attribute segments must have coalesced into one.
	s, ok := l.Lookup(0x1000)
	if !ok || s.Base != 0x1000 || s.Size != 0x2000 {
		t.Fatalf("expected coalesced [0x1000,0x3000), got %+v ok=%v", s, ok)
	}

	if err := l.AddSegment(0x1000, 0x100, ProtRead, 0); err == 0 {
		t.Fatal("expected EINVAL on overlapping AddSegment")
	}

	if err := l.RemoveSegment(0x1800, 0x800); err != 0 {
		t.Fatalf("RemoveSegment (split): %v", err)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("Verify after split: %v", err)
	}
	if _, ok := l.Lookup(0x1800); ok {
		t.Fatal("removed range should no longer be found")
	}
	if _, ok := l.Lookup(0x1000); !ok {
		t.Fatal("head half of split segment should survive")
	}
	if _, ok := l.Lookup(0x2000); !ok {
		t.Fatal("tail half of split segment should survive")
	}
}

func TestSegmentListRemoveRejectsNoUnmap(t *testing.T) {
	var l SegmentList
	l.AddSegment(0x1000, 0x1000, ProtRead, FlagNoUnmap)
	if err := l.RemoveSegment(0x1000, 0x1000); err == 0 {
		t.Fatal("expected EINVAL removing a FlagNoUnmap range")
	}
}

func TestFindAndAddNewSegmentFirstFit(t *testing.T) {
	var l SegmentList
	l.AddSegment(0x1000, 0x1000, ProtRead, 0)
	base, err := l.FindAndAddNewSegment(0x1000, 0x1000, ProtRead, 0)
	if err != 0 {
		t.Fatalf("FindAndAddNewSegment: %v", err)
	}
	if base != 0x2000 {
		t.Fatalf("expected first-fit base 0x2000, got %#x", base)
	}
}

func newTestSpaces() (*AddressSpace, *AddressSpace) {
	a := mem.NewAllocator(64, 0)
	kas := NewKernel(a)
	uas := NewUser(a, kas)
	return kas, uas
}

func TestMapAtUnmapRoundTrip(t *testing.T) {
	_, uas := newTestSpaces()
	f := mem.Frame(0x4000)
	va := UserMin

	if _, err := uas.MapAt(va, f, ProtRead|ProtWrite); err != 0 {
		t.Fatalf("MapAt: %v", err)
	}
	got, prot, ok := uas.Translate(va)
	if !ok || got != f || prot != ProtRead|ProtWrite {
		t.Fatalf("Translate after MapAt: got=%v prot=%v ok=%v", got, prot, ok)
	}
	if uas.TLBFlushes() != 1 {
		t.Fatalf("expected 1 TLB flush after MapAt, got %d", uas.TLBFlushes())
	}

	uas.Unmap(va)
	if _, _, ok := uas.Translate(va); ok {
		t.Fatal("Translate should fail after Unmap")
	}
	if uas.TLBFlushes() != 2 {
		t.Fatalf("expected 2 TLB flushes after Unmap, got %d", uas.TLBFlushes())
	}

	// Idempotence: unmapping an already-unmapped vaddr is a no-op, not a
	// fault, and issues no TLB flush (spec.md §8).
	uas.Unmap(va)
	if _, _, ok := uas.Translate(va); ok {
		t.Fatal("double Unmap must remain a no-op, not resurrect a mapping")
	}
}

func TestMapAtOverridesExistingMapping(t *testing.T) {
	_, uas := newTestSpaces()
	va := UserMin
	uas.MapAt(va, mem.Frame(0x4000), ProtRead)
	uas.MapAt(va, mem.Frame(0x5000), ProtRead|ProtWrite)
	got, prot, ok := uas.Translate(va)
	if !ok || got != mem.Frame(0x5000) || prot != ProtRead|ProtWrite {
		t.Fatalf("second MapAt should override the first, got %v %v %v", got, prot, ok)
	}
}

func TestMapMemoryAllOrNothingRollback(t *testing.T) {
	a := mem.NewAllocator(4, 0)
	kas := NewKernel(a)
	uas := NewUser(a, kas)

	free, _, _ := a.Stats()
	// Ask for more pages than exist; MapMemory must fail cleanly and
	// return every frame it provisionally popped.
	if _, err := uas.MapMemory((free+10)*mem.PGSIZE, ProtRead|ProtWrite); err == 0 {
		t.Fatal("expected ENOMEM for an over-large MapMemory request")
	}
	freeAfter, inuse, _ := a.Stats()
	if freeAfter != free || inuse != 0 {
		t.Fatalf("MapMemory failure must roll back every popped frame: free=%d inuse=%d (want free=%d inuse=0)", freeAfter, inuse, free)
	}
}

func TestMapMemorySucceedsAndIsAddressable(t *testing.T) {
	a := mem.NewAllocator(16, 0)
	kas := NewKernel(a)
	uas := NewUser(a, kas)

	base, err := uas.MapMemory(3*mem.PGSIZE, ProtRead|ProtWrite)
	if err != 0 {
		t.Fatalf("MapMemory: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, ok := uas.Translate(base + uintptr(i)*mem.PGSIZE); !ok {
			t.Fatalf("page %d of MapMemory range not mapped", i)
		}
	}
	if s, ok := uas.Segs.Lookup(base); !ok || s.Size != 3*mem.PGSIZE {
		t.Fatalf("expected a 3-page segment at base, got %+v ok=%v", s, ok)
	}
}

func TestForkCopiesContentIndependently(t *testing.T) {
	a := mem.NewAllocator(16, 0)
	kas := NewKernel(a)
	parent := NewUser(a, kas)

	base, err := parent.MapMemory(mem.PGSIZE, ProtRead|ProtWrite)
	if err != 0 {
		t.Fatalf("MapMemory: %v", err)
	}
	pf, _, _ := parent.Translate(base)
	a.Dmap(pf)[0] = 0xAB

	child, err := parent.Fork()
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}
	cf, _, ok := child.Translate(base)
	if !ok {
		t.Fatal("child should have the same segment mapped after Fork")
	}
	if cf == pf {
		t.Fatal("Fork must give the child an independently owned frame, not alias the parent's")
	}
	if a.Dmap(cf)[0] != 0xAB {
		t.Fatal("Fork must copy the parent frame's content into the child's frame")
	}

	// Writes after fork must not cross between address spaces.
	a.Dmap(pf)[0] = 0xCD
	if a.Dmap(cf)[0] != 0xAB {
		t.Fatal("post-fork parent write leaked into child frame")
	}
}

func TestDestroyReleasesFrames(t *testing.T) {
	a := mem.NewAllocator(16, 0)
	kas := NewKernel(a)
	uas := NewUser(a, kas)

	free0, _, _ := a.Stats()
	uas.MapMemory(2*mem.PGSIZE, ProtRead|ProtWrite)
	freeMid, _, _ := a.Stats()
	if freeMid != free0-2 {
		t.Fatalf("expected 2 frames consumed, free went %d -> %d", free0, freeMid)
	}
	uas.Destroy()
	freeEnd, _, _ := a.Stats()
	if freeEnd != free0 {
		t.Fatalf("Destroy should release every frame the address space owned: free=%d want=%d", freeEnd, free0)
	}
	if uas.Segs.head != nil {
		t.Fatal("Destroy should clear the segment list")
	}
}
