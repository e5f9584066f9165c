// Package mem implements the physical frame allocator, spec.md §4.1.
// Grounded on biscuit's mem.Physmem_t free-list-as-linked-stack
// technique (biscuit/src/mem/mem.go), simplified to the spec's single
// global stack: Physmem_t also keeps a per-CPU free list to avoid lock
// contention across cores, which spec.md's explicit multiprocessor
// Non-goal (§1) makes unnecessary here.
package mem

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a page in bytes.
const PGSIZE = 1 << PGSHIFT

// Frame is an opaque physical page address, always page aligned.
type Frame uintptr

// Page is the fixed-size buffer backing one physical frame.
type Page [PGSIZE]byte

// Allocator is the global physical frame stack described in spec.md §4.1:
// push(frame) releases a frame, pop() acquires one. The stack is backed
// by a plain Go slice; biscuit's "the stack's backing area grows by
// repurposing a freshly-freed frame" trick exists only because a
// from-scratch kernel cannot call malloc for its own free list — a plain
// growable slice is the direct idiomatic-Go equivalent and preserves the
// same observable push/pop semantics (spec.md §8's round-trip law:
// push(f); pop() ⇒ f when otherwise quiescent).
type Allocator struct {
	mu   sync.Mutex
	free []Frame
	pg   map[Frame]*Page

	total    int64
	reserved int64 // kernel image, bootstrap, below-1MiB: never pushed
	sem      *semaphore.Weighted
}

// NewAllocator builds an allocator owning total frames, of which the
// first `reserved` are marked reserved (spec.md §3: "reserved (kernel
// image, bootstrap, below 1 MiB)") and never enter the free stack.
func NewAllocator(total, reserved int) *Allocator {
	if reserved < 0 || reserved > total {
		panic("mem: bad reserved count")
	}
	a := &Allocator{
		pg:       make(map[Frame]*Page, total),
		total:    int64(total),
		reserved: int64(reserved),
		sem:      semaphore.NewWeighted(int64(total - reserved)),
	}
	for i := reserved; i < total; i++ {
		f := Frame(i * PGSIZE)
		a.pg[f] = &Page{}
		a.free = append(a.free, f)
	}
	return a
}

// Pop acquires a free frame. It reports ok=false (out-of-memory) instead
// of blocking or retrying, per spec.md §4.1 ("Out-of-memory is reported,
// not retried").
func (a *Allocator) Pop() (Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.free)
	if n == 0 {
		return 0, false
	}
	f := a.free[n-1]
	a.free = a.free[:n-1]
	if !a.sem.TryAcquire(1) {
		// Accounting desync would be an internal invariant violation.
		panic("mem: free stack and semaphore accounting disagree")
	}
	clear(a.pg[f][:])
	return f, true
}

// Push releases a frame back to the free stack.
func (a *Allocator) Push(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pg[f]; !ok {
		panic("mem: push of frame outside allocator's range")
	}
	a.free = append(a.free, f)
	a.sem.Release(1)
}

// Dmap returns the byte buffer backing a frame, the direct-map
// equivalent of biscuit's Physmem_t.Dmap: any live frame is always
// addressable by the kernel regardless of which address space, if any,
// it is also mapped into.
func (a *Allocator) Dmap(f Frame) *Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	pg, ok := a.pg[f]
	if !ok {
		panic("mem: Dmap of frame outside allocator's range")
	}
	return pg
}

// Stats reports free, in-use (total - reserved - free), and reserved
// frame counts; spec.md §8 requires these three plus the frames cached by
// the block layer to sum to the total at every stable point.
func (a *Allocator) Stats() (free, inuse, reserved int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	free = len(a.free)
	reserved = int(a.reserved)
	inuse = int(a.total) - free - reserved
	return
}

// TryReserve acquires n frames worth of accounting without popping any
// frame, an all-or-nothing admission check. It returns false, without
// side effects, if n frames are not currently available. Nothing in this
// module calls it; vm.AddressSpace.MapMemory pops with PopReclaiming and
// the block cache with Pop.
func (a *Allocator) TryReserve(n int) bool {
	return a.sem.TryAcquire(int64(n))
}

// Unreserve releases accounting acquired by TryReserve without a
// corresponding Pop.
func (a *Allocator) Unreserve(n int) {
	a.sem.Release(int64(n))
}

// WaitReserve blocks until n frames worth of accounting are available or
// ctx is done. Nothing in this module calls it.
func (a *Allocator) WaitReserve(ctx context.Context, n int) error {
	return a.sem.Acquire(ctx, int64(n))
}
