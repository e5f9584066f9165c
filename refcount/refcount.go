// Package refcount implements the generic intrusive refcounting helper
// described in DESIGN NOTES §9 ("Reference-counted Vnode with polymorphic
// dispatch"), grounded on original_source's
// kernel/include/dennix/kernel/refcount.h. vfs.Vnode embeds Counted to
// get atomic reference counting with a single run-under-last-decrement
// destructor hook.
package refcount

import "sync/atomic"

// Counted gives any struct atomic refcounting with a destroy-on-last-drop
// hook. The embedding struct must call Init once before Ref/Unref.
type Counted struct {
	n atomic.Int64
}

// Init sets the initial reference count to one, representing the
// reference returned to whoever constructed the object.
func (c *Counted) Init() { c.n.Store(1) }

// Ref increments the reference count. It must only be called while the
// caller already holds a reference (or the owning structure's lock
// otherwise guarantees the object cannot be concurrently destroyed).
func (c *Counted) Ref() {
	if c.n.Add(1) <= 1 {
		panic("refcount: Ref on dead object")
	}
}

// Unref decrements the reference count and reports whether this was the
// last reference (the caller must run its destructor exactly when true
// is returned).
func (c *Counted) Unref() bool {
	n := c.n.Add(-1)
	if n < 0 {
		panic("refcount: negative refcount")
	}
	return n == 0
}

// Count returns the current reference count, for tests and diagnostics.
func (c *Counted) Count() int64 { return c.n.Load() }
