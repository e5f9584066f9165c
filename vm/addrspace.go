package vm

import (
	"sync"

	"dennix/defs"
	"dennix/mem"
	"dennix/util"
)

// Userland addresses start above the zero page; kernel addresses are
// modeled as starting at KernelBase, mirroring biscuit's split between a
// low user range and a shared high kernel range.
const (
	UserMin    uintptr = 1 << mem.PGSHIFT
	UserMax    uintptr = 1 << 46
	KernelBase uintptr = 1 << 47
	KernelMax  uintptr = 1 << 48
)

// AddressSpace owns a two-level page table plus the sorted segment list
// describing its occupied virtual ranges, spec.md §4.2. Grounded on
// biscuit's Vm_t: the mutex protects the page table and the segment
// list together, exactly as Vm_t's comment documents ("lock for
// vmregion, pmpages, pmap, and p_pmap").
type AddressSpace struct {
	mu   sync.Mutex
	dir  pageDirectory
	Segs SegmentList
	tlb  tlb

	alloc *mem.Allocator

	// kernel is nil for the one process-wide kernel address space, and
	// points at it for every user address space, so that kernel
	// mappings installed after a user process is created are still
	// visible without copying page-table entries around (the classic
	// "share the kernel's page tables" trick).
	kernel *AddressSpace

	kernelNext uintptr // bump allocator for mapPhysical's kernel range
}

// NewKernel constructs the one process-wide kernel address space.
func NewKernel(alloc *mem.Allocator) *AddressSpace {
	return &AddressSpace{alloc: alloc, kernelNext: KernelBase}
}

// NewUser constructs a user address space sharing kernel to kernel's
// mappings.
func NewUser(alloc *mem.Allocator, kernel *AddressSpace) *AddressSpace {
	return &AddressSpace{alloc: alloc, kernel: kernel}
}

// lookupPTE walks this address space's own table first and falls back to
// the shared kernel table for addresses at or above KernelBase.
func (as *AddressSpace) lookupPTE(va uintptr, create bool) (*pte, defs.Err_t) {
	if va >= KernelBase && as.kernel != nil {
		as.kernel.mu.Lock()
		defer as.kernel.mu.Unlock()
		return as.kernel.dir.walk(va, create)
	}
	return as.dir.walk(va, create)
}

// MapAt installs a mapping at vaddr, overriding any existing mapping
// there, and flushes the TLB entry, spec.md §4.2. It returns the vaddr
// actually used (always equal to the argument — biscuit's contract
// allows the implementation to choose otherwise, but this module never
// needs to).
func (as *AddressSpace) MapAt(vaddr uintptr, paddr mem.Frame, prot Prot) (uintptr, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, err := as.lookupPTE(vaddr, true)
	if err != 0 {
		return 0, err
	}
	if p == nil {
		return 0, -defs.ENOMEM
	}
	p.frame = paddr
	p.prot = prot
	p.present = true
	as.tlb.flush(vaddr)
	return vaddr, 0
}

// Unmap removes the mapping at vaddr and flushes its TLB entry. Unmapping
// an address with no mapping is a no-op (spec.md §8 idempotence: "unmap
// of an already-unmapped virtual address is a no-op (does not fault)").
func (as *AddressSpace) Unmap(vaddr uintptr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, _ := as.lookupPTE(vaddr, false)
	if p == nil || !p.present {
		return
	}
	*p = pte{}
	as.tlb.flush(vaddr)
}

// Translate returns the frame and protection mapped at vaddr, for tests
// and for the page-fault-free fast path of a cached copy-in/copy-out.
func (as *AddressSpace) Translate(vaddr uintptr) (mem.Frame, Prot, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, _ := as.lookupPTE(vaddr, false)
	if p == nil || !p.present {
		return 0, 0, false
	}
	return p.frame, p.prot, true
}

// MapPhysical chooses a free kernel virtual range and maps the given
// physical range [paddr, paddr+size) into it, spec.md §4.2. Only
// meaningful for the kernel address space (or a user address space's
// shared kernel range).
func (as *AddressSpace) MapPhysical(paddr mem.Frame, size int, prot Prot) (uintptr, defs.Err_t) {
	kas := as
	if as.kernel != nil {
		kas = as.kernel
	}
	pages := util.Roundup(size, mem.PGSIZE) / mem.PGSIZE

	kas.mu.Lock()
	base := kas.kernelNext
	kas.kernelNext += uintptr(pages) * mem.PGSIZE
	err := kas.Segs.AddSegment(base, uintptr(pages)*mem.PGSIZE, prot, 0)
	kas.mu.Unlock()
	if err != 0 {
		return 0, err
	}
	for i := 0; i < pages; i++ {
		va := base + uintptr(i)*mem.PGSIZE
		pa := paddr + mem.Frame(i*mem.PGSIZE)
		if _, err := kas.MapAt(va, pa, prot); err != 0 {
			// Roll back every mapping installed so far.
			for j := 0; j < i; j++ {
				kas.Unmap(base + uintptr(j)*mem.PGSIZE)
			}
			kas.mu.Lock()
			kas.Segs.RemoveSegment(base, uintptr(pages)*mem.PGSIZE)
			kas.mu.Unlock()
			return 0, err
		}
	}
	return base, 0
}

// MapMemory behaves like MapPhysical but the backing frames are freshly
// popped from the allocator rather than supplied by the caller, spec.md
// §4.2. Failure is all-or-nothing: if any frame pop fails partway
// through, every frame already popped is pushed back and no mapping is
// left installed.
func (as *AddressSpace) MapMemory(size int, prot Prot) (uintptr, defs.Err_t) {
	pages := util.Roundup(size, mem.PGSIZE) / mem.PGSIZE
	frames := make([]mem.Frame, 0, pages)
	rollback := func() {
		for _, f := range frames {
			as.alloc.Push(f)
		}
	}
	for i := 0; i < pages; i++ {
		f, ok := as.alloc.PopReclaiming()
		if !ok {
			rollback()
			return 0, -defs.ENOMEM
		}
		frames = append(frames, f)
	}

	as.mu.Lock()
	base, err := as.Segs.FindAndAddNewSegment(UserMin, uintptr(pages)*mem.PGSIZE, prot, 0)
	as.mu.Unlock()
	if err != 0 {
		for _, f := range frames {
			as.alloc.Push(f)
		}
		return 0, err
	}
	for i, f := range frames {
		va := base + uintptr(i)*mem.PGSIZE
		if _, err := as.MapAt(va, f, prot); err != 0 {
			for j := 0; j <= i; j++ {
				as.Unmap(base + uintptr(j)*mem.PGSIZE)
			}
			for _, ff := range frames {
				as.alloc.Push(ff)
			}
			as.mu.Lock()
			as.Segs.RemoveSegment(base, uintptr(pages)*mem.PGSIZE)
			as.mu.Unlock()
			return 0, err
		}
	}
	return base, 0
}

// Fork produces a new address space that shares kernel mappings and
// independently owns copies of every user mapping, spec.md §4.2
// ("copy-on-write is not required by the spec").
func (as *AddressSpace) Fork() (*AddressSpace, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := NewUser(as.alloc, as.effectiveKernel())

	type mapping struct {
		base, size uintptr
		prot       Prot
		flags      SegFlag
	}
	var segs []mapping
	for s := as.Segs.head; s != nil; s = s.next {
		segs = append(segs, mapping{s.Base, s.Size, s.Prot, s.Flags})
	}

	for _, m := range segs {
		if err := child.Segs.AddSegment(m.base, m.size, m.prot, m.flags); err != 0 {
			return nil, err
		}
		pages := int(m.size) / mem.PGSIZE
		for i := 0; i < pages; i++ {
			va := m.base + uintptr(i)*mem.PGSIZE
			p, ok := as.dir.lookup(va)
			if !ok || !p.present {
				continue
			}
			nf, ok := as.alloc.PopReclaiming()
			if !ok {
				return nil, -defs.ENOMEM
			}
			copy(as.alloc.Dmap(nf)[:], as.alloc.Dmap(p.frame)[:])
			if _, err := child.MapAt(va, nf, p.prot); err != 0 {
				as.alloc.Push(nf)
				return nil, err
			}
		}
	}
	return child, 0
}

func (as *AddressSpace) effectiveKernel() *AddressSpace {
	if as.kernel != nil {
		return as.kernel
	}
	return as
}

// Destroy releases every frame exclusively owned by this address space's
// user mappings, spec.md §3: "on process exit, the address space is
// destroyed, which releases all frames it exclusively owned." The shared
// kernel range is left untouched.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for s := as.Segs.head; s != nil; s = s.next {
		pages := int(s.Size) / mem.PGSIZE
		for i := 0; i < pages; i++ {
			va := s.Base + uintptr(i)*mem.PGSIZE
			if p, ok := as.dir.lookup(va); ok {
				as.alloc.Push(p.frame)
				*p = pte{}
			}
		}
	}
	as.Segs.Clear()
}

// TLBFlushes reports how many TLB invalidations this address space has
// issued, for tests asserting MapAt/Unmap flush on every affected page.
func (as *AddressSpace) TLBFlushes() int { return as.tlb.count() }
