package vm

import "dennix/defs"

// SegFlag carries segment-wide flags beyond the {read,write,execute}
// protection set, spec.md §3.
type SegFlag uint8

const (
	// FlagNoUnmap marks a range that unmap must never remove.
	FlagNoUnmap SegFlag = 1 << iota
)

// Segment describes one occupied virtual range [Base, Base+Size),
// spec.md §3. Segments in one address space's list are kept sorted by
// Base, never overlap, and are doubly linked for O(1) removal (DESIGN
// NOTES §9: "Embedded intrusive linked lists").
type Segment struct {
	Base  uintptr
	Size  uintptr
	Prot  Prot
	Flags SegFlag

	prev, next *Segment
}

func (s *Segment) end() uintptr { return s.Base + s.Size }

func (s *Segment) sameAttrs(o *Segment) bool {
	return s.Prot == o.Prot && s.Flags == o.Flags
}

// SegmentList is the sorted, non-overlapping, doubly-linked list of
// segments for one address space, spec.md §4.3. It is not safe for
// concurrent use by itself; AddressSpace serializes access with its own
// lock.
type SegmentList struct {
	head, tail *Segment
}

func (l *SegmentList) insertAfter(at, n *Segment) {
	n.prev = at
	if at == nil {
		n.next = l.head
		l.head = n
	} else {
		n.next = at.next
		at.next = n
	}
	if n.next == nil {
		l.tail = n
	} else {
		n.next.prev = n
	}
}

func (l *SegmentList) remove(s *Segment) {
	if s.prev == nil {
		l.head = s.next
	} else {
		s.prev.next = s.next
	}
	if s.next == nil {
		l.tail = s.prev
	} else {
		s.next.prev = s.prev
	}
	s.prev, s.next = nil, nil
}

// find returns the last segment whose Base is <= addr (or nil if addr is
// before every segment), the standard predecessor search for sorted
// insertion/lookup.
func (l *SegmentList) find(addr uintptr) *Segment {
	var prev *Segment
	for s := l.head; s != nil; s = s.next {
		if s.Base > addr {
			break
		}
		prev = s
	}
	return prev
}

// Lookup returns the segment covering addr, if any.
func (l *SegmentList) Lookup(addr uintptr) (*Segment, bool) {
	s := l.find(addr)
	if s != nil && addr < s.end() {
		return s, true
	}
	return nil, false
}

// overlaps reports whether [base, base+size) intersects any existing
// segment.
func (l *SegmentList) overlaps(base, size uintptr) bool {
	end := base + size
	for s := l.head; s != nil; s = s.next {
		if s.Base >= end {
			break
		}
		if s.end() > base {
			return true
		}
	}
	return false
}

// AddSegment installs a new segment covering [base, base+size), merging
// with an adjacent segment of identical attributes, spec.md §4.3. It
// fails with EINVAL if the range intersects an existing segment.
func (l *SegmentList) AddSegment(base, size uintptr, prot Prot, flags SegFlag) defs.Err_t {
	if size == 0 {
		return -defs.EINVAL
	}
	if l.overlaps(base, size) {
		return -defs.EINVAL
	}
	n := &Segment{Base: base, Size: size, Prot: prot, Flags: flags}
	prev := l.find(base)
	l.insertAfter(prev, n)
	l.coalesce(n)
	return 0
}

// coalesce merges n with its immediate neighbors if they are adjacent and
// share identical attributes, spec.md §3: "adjacent segments with
// identical attributes may be coalesced."
func (l *SegmentList) coalesce(n *Segment) {
	if nx := n.next; nx != nil && n.end() == nx.Base && n.sameAttrs(nx) {
		n.Size += nx.Size
		l.remove(nx)
	}
	if pv := n.prev; pv != nil && pv.end() == n.Base && pv.sameAttrs(n) {
		pv.Size += n.Size
		l.remove(n)
	}
}

// RemoveSegment deletes fully-covered segments and trims boundary
// segments within [base, base+size), spec.md §4.3. It fails with EINVAL
// if any part of the range carries FlagNoUnmap.
func (l *SegmentList) RemoveSegment(base, size uintptr) defs.Err_t {
	if size == 0 {
		return -defs.EINVAL
	}
	end := base + size
	for s := l.head; s != nil; s = s.next {
		if s.Base >= end {
			break
		}
		if s.end() <= base {
			continue
		}
		if s.Flags&FlagNoUnmap != 0 {
			return -defs.EINVAL
		}
	}
	var next *Segment
	for s := l.head; s != nil; s = next {
		next = s.next
		if s.Base >= end {
			break
		}
		if s.end() <= base {
			continue
		}
		switch {
		case s.Base >= base && s.end() <= end:
			// fully covered
			l.remove(s)
		case s.Base < base && s.end() > end:
			// split into two
			tail := &Segment{Base: end, Size: s.end() - end, Prot: s.Prot, Flags: s.Flags}
			s.Size = base - s.Base
			l.insertAfter(s, tail)
			next = tail.next
		case s.Base < base:
			// trim tail
			s.Size = base - s.Base
		default:
			// trim head
			newBase := end
			s.Size = s.end() - newBase
			s.Base = newBase
		}
	}
	return 0
}

// FindAndAddNewSegment performs a first-fit search from low to high
// starting at floor for a free range of size bytes, installs a new
// segment there, and returns its base, spec.md §4.3.
func (l *SegmentList) FindAndAddNewSegment(floor, size uintptr, prot Prot, flags SegFlag) (uintptr, defs.Err_t) {
	if size == 0 {
		return 0, -defs.EINVAL
	}
	cand := floor
	for s := l.head; s != nil; s = s.next {
		if s.Base >= cand+size {
			break
		}
		if s.end() > cand {
			cand = s.end()
		}
	}
	if err := l.AddSegment(cand, size, prot, flags); err != 0 {
		return 0, err
	}
	return cand, 0
}

// Clear removes every segment from the list.
func (l *SegmentList) Clear() {
	l.head, l.tail = nil, nil
}

// Verify walks the list confirming ordering, non-overlap, and correct
// prev/next linkage, spec.md §4.3's verifySegmentList debug check. It is
// exposed as a first-class, always-available entry point (the spec
// suggests but does not require gating it on a debug build) so tests can
// call it directly.
func (l *SegmentList) Verify() error {
	var prev *Segment
	for s := l.head; s != nil; s = s.next {
		if s.prev != prev {
			return errVerify("broken prev link")
		}
		if prev != nil {
			if prev.end() > s.Base {
				return errVerify("overlapping or unsorted segments")
			}
		}
		prev = s
	}
	if l.tail != prev {
		return errVerify("tail pointer does not match list end")
	}
	return nil
}

type verifyError string

func (e verifyError) Error() string { return string(e) }
func errVerify(s string) error      { return verifyError(s) }
