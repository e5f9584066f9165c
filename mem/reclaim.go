package mem

import "sync"

// Reclaimer is implemented by cache controllers (vfs/blk's cached block
// device) that can give back exactly one frame in O(1) time, spec.md
// §4.9's reclaim protocol: "when the physical allocator fails, it scans
// registered cache controllers and calls reclaimCache ... Reclaim is O(1)
// per invocation."
type Reclaimer interface {
	// ReclaimOne unhooks the single LRU-tail block from its hash table
	// and LRU list and returns its backing frame along with true, without
	// releasing that frame's accounting: the frame is hot-handed to
	// whichever allocation triggered the reclaim, so the allocator's
	// in-use count is unchanged. It returns ok=false if nothing is
	// currently reclaimable (for example every cached block is mid-I/O).
	ReclaimOne() (Frame, bool)
}

type reclaimRegistry struct {
	mu        sync.Mutex
	reclaimers []Reclaimer
}

var registry reclaimRegistry

// Register adds r to the set of cache controllers consulted when the
// allocator is out of memory.
func Register(r Reclaimer) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.reclaimers = append(registry.reclaimers, r)
}

// Unregister removes a previously registered reclaimer (used when a
// cached device is torn down, chiefly in tests).
func Unregister(r Reclaimer) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for i, x := range registry.reclaimers {
		if x == r {
			registry.reclaimers = append(registry.reclaimers[:i], registry.reclaimers[i+1:]...)
			return
		}
	}
}

// PopReclaiming behaves like Pop, but on an empty free stack scans every
// registered Reclaimer (in registration order, stopping at the first
// reclaim that succeeds) before giving up and returning ok=false.
func (a *Allocator) PopReclaiming() (Frame, bool) {
	if f, ok := a.Pop(); ok {
		return f, true
	}
	registry.mu.Lock()
	rs := append([]Reclaimer(nil), registry.reclaimers...)
	registry.mu.Unlock()
	for _, r := range rs {
		if f, ok := r.ReclaimOne(); ok {
			clear(a.Dmap(f)[:])
			return f, true
		}
	}
	return 0, false
}
