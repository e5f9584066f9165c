package fd

import (
	"sync"

	"dennix/defs"
)

// DefaultMaxOpenFiles mirrors
// original_source/kernel/include/dennix/kernel/process.h's fixed
// `FileDescription* fd[20]` array; this module makes the bound a
// per-table constructor argument instead of a compile-time array size,
// but keeps the same default.
const DefaultMaxOpenFiles = 20

// Table is the per-process descriptor table of spec.md's glossary:
// "per-process array mapping small non-negative integers to file
// descriptions." Grounded on
// original_source/kernel/include/dennix/kernel/process.h's fd[20] array,
// generalized to a slice with a configurable bound and a
// lowest-free-slot allocator (the POSIX dup/open contract), since the
// teacher's own `proc` package was an empty shell in the retrieval pack.
type Table struct {
	mu    sync.Mutex
	slots []*Fd_t
	max   int
}

// NewTable constructs an empty table admitting at most max simultaneous
// descriptors (DefaultMaxOpenFiles if max <= 0).
func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxOpenFiles
	}
	return &Table{max: max}
}

// growLocked extends slots so index i is addressable.
func (t *Table) growLocked(i int) {
	for len(t.slots) <= i {
		t.slots = append(t.slots, nil)
	}
}

// Install places f at the lowest unused descriptor number at or above
// atLeast, failing with EMFILE once the table's configured bound would
// be exceeded.
func (t *Table) Install(f *Fd_t, atLeast int) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if atLeast < 0 {
		return 0, -defs.EINVAL
	}
	n := atLeast
	for n < len(t.slots) && t.slots[n] != nil {
		n++
	}
	if n >= t.max {
		return 0, -defs.EMFILE
	}
	t.growLocked(n)
	t.slots[n] = f
	return n, 0
}

// Len returns one past the highest descriptor number the table has ever
// allocated, i.e. the exclusive upper bound a caller sweeping every slot
// with Close should iterate to. Slots within this range may be nil.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Get returns the descriptor installed at n.
func (t *Table) Get(n int) (*Fd_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 || n >= len(t.slots) || t.slots[n] == nil {
		return nil, -defs.EBADF
	}
	return t.slots[n], 0
}

// Close releases the descriptor at n, closing its underlying file.
func (t *Table) Close(n int) defs.Err_t {
	t.mu.Lock()
	if n < 0 || n >= len(t.slots) || t.slots[n] == nil {
		t.mu.Unlock()
		return -defs.EBADF
	}
	f := t.slots[n]
	t.slots[n] = nil
	t.mu.Unlock()
	if err := f.File.Close(); err != nil {
		return -defs.EIO
	}
	return 0
}

// Dup installs a fresh reference to the descriptor at oldn at the
// lowest free slot, spec.md's descriptor table semantics plus the
// teacher's Copyfd reopen-by-value convention.
func (t *Table) Dup(oldn int) (int, defs.Err_t) {
	old, err := t.Get(oldn)
	if err != 0 {
		return 0, err
	}
	nf, rerr := Copyfd(old)
	if rerr != nil {
		return 0, -defs.EIO
	}
	return t.Install(nf, 0)
}

// Dup2 installs a fresh reference to oldn at exactly newn, closing
// whatever previously occupied newn. A no-op (but still valid) when
// oldn == newn and it is already open.
func (t *Table) Dup2(oldn, newn int) defs.Err_t {
	if newn < 0 {
		return -defs.EINVAL
	}
	old, err := t.Get(oldn)
	if err != 0 {
		return err
	}
	if oldn == newn {
		return 0
	}
	nf, rerr := Copyfd(old)
	if rerr != nil {
		return -defs.EIO
	}

	t.mu.Lock()
	t.growLocked(newn)
	prev := t.slots[newn]
	t.slots[newn] = nf
	t.mu.Unlock()

	if prev != nil {
		_ = prev.File.Close()
	}
	return 0
}

// CloseOnExec closes and clears every descriptor marked FD_CLOEXEC, the
// table-wide sweep a successful exec(2) performs. Out of scope process
// creation/exec machinery (spec.md §1) never calls this directly, but it
// is exercised by tests and left available for a future exec path.
func (t *Table) CloseOnExec() {
	t.mu.Lock()
	var toClose []*Fd_t
	for i, f := range t.slots {
		if f != nil && f.Perms&FD_CLOEXEC != 0 {
			toClose = append(toClose, f)
			t.slots[i] = nil
		}
	}
	t.mu.Unlock()
	for _, f := range toClose {
		_ = f.File.Close()
	}
}
