package sched

// Ring is the runnable thread ring-list of spec.md §4.4: a circular,
// doubly-linked list consulted round-robin, skipping non-runnable
// threads. Grounded on the intrusive-linked-list idiom DESIGN NOTES §9
// calls for throughout this module (vm.SegmentList, vfs/blk's LRU list)
// rather than an index-based slice, so splice-out at arbitrary position
// (thread destruction) is O(1).
type Ring struct {
	cursor *Thread // last thread returned by Next; nil when the ring is empty
}

// Insert splices t into the ring, if it is not already linked.
func (r *Ring) Insert(t *Thread) {
	if t.next != nil || t.prev != nil {
		return // already linked
	}
	if r.cursor == nil {
		t.next, t.prev = t, t
		r.cursor = t
		return
	}
	head := r.cursor
	tail := head.prev
	tail.next = t
	t.prev = tail
	t.next = head
	head.prev = t
}

// Remove excises t from the ring, spec.md §4.4 thread destruction:
// "excise from the ring and reclaim the kernel stack."
func (r *Ring) Remove(t *Thread) {
	if t.next == nil {
		return // not linked
	}
	if t.next == t {
		r.cursor = nil
	} else {
		t.prev.next = t.next
		t.next.prev = t.prev
		if r.cursor == t {
			r.cursor = t.next
		}
	}
	t.next, t.prev = nil, nil
}

// Next returns the next Runnable thread after the cursor, round-robin,
// advancing the cursor past it; it returns nil, false if no thread in
// the ring is currently Runnable (the caller falls back to the idle
// thread, spec.md §4.4).
func (r *Ring) Next() (*Thread, bool) {
	if r.cursor == nil {
		return nil, false
	}
	start := r.cursor
	cur := start
	for {
		cur = cur.next
		if cur.State == Runnable {
			r.cursor = cur
			return cur, true
		}
		if cur == start {
			return nil, false
		}
	}
}

// Len reports the number of threads currently linked into the ring,
// runnable or not.
func (r *Ring) Len() int {
	if r.cursor == nil {
		return 0
	}
	n := 1
	for cur := r.cursor.next; cur != r.cursor; cur = cur.next {
		n++
	}
	return n
}
