// Package kmutex implements the kernel mutex and condition variable,
// spec.md §4.6. Grounded on the teacher's embedded-lock idiom throughout
// biscuit/src/vm/as.go and biscuit/src/accnt/accnt.go (every owning
// struct carries its own lock rather than a package-global one), but the
// primitives themselves are written straight from spec.md §4.6 — the
// teacher runs atop a real goroutine scheduler and so never needed its
// own spin-based mutex; this package reconstructs the test-and-set
// mutex and FIFO-waiter condvar it describes, the way
// original_source/kernel/include/dennix/kernel/kthread.h describes them
// in C.
package kmutex

import (
	"runtime"
	"sync/atomic"

	"dennix/clock"
	"dennix/defs"
)

// Mutex is a single byte acted on by atomic test-and-set/clear, spec.md
// §4.6: "a single byte acted on by atomic test-and-set (acquire) and
// atomic clear (release)". It is non-recursive and not owner-recorded;
// correct use (no self-deadlock, no unlock-by-non-holder) is a
// precondition enforced by code review, not by the primitive, exactly as
// the spec states.
type Mutex struct {
	held atomic.Bool
}

// Lock spins on test-and-set, yielding between attempts.
func (m *Mutex) Lock() {
	for !m.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// Trylock returns immediately with ok=false if the test-and-set fails,
// instead of spinning.
func (m *Mutex) Trylock() (ok bool) {
	return m.held.CompareAndSwap(false, true)
}

// Unlock clears the held flag.
func (m *Mutex) Unlock() {
	m.held.Store(false)
}

// waiter is one node in a condition variable's FIFO wait list.
type waiter struct {
	blocked atomic.Bool
	next    *waiter
}

// Cond is the condition variable of spec.md §4.6: a FIFO list of waiter
// nodes protected by an internal mutex.
type Cond struct {
	internal Mutex
	head     *waiter
	tail     *waiter
}

func (c *Cond) pushLocked(w *waiter) {
	w.blocked.Store(true)
	if c.tail == nil {
		c.head, c.tail = w, w
		return
	}
	c.tail.next = w
	c.tail = w
}

// removeLocked removes w from the list if it is still present (a racing
// signal/broadcast may already have unlinked it); returns whether it was
// found.
func (c *Cond) removeLocked(w *waiter) bool {
	var prev *waiter
	for cur := c.head; cur != nil; cur = cur.next {
		if cur == w {
			if prev == nil {
				c.head = cur.next
			} else {
				prev.next = cur.next
			}
			if c.tail == cur {
				c.tail = prev
			}
			return true
		}
		prev = cur
	}
	return false
}

// Wait pushes a fresh waiter, releases userMutex, and spin-yields until
// signalled, per spec.md §4.6's `wait` description; it reacquires
// userMutex before returning.
func (c *Cond) Wait(userMutex *Mutex) {
	w := &waiter{}
	c.internal.Lock()
	c.pushLocked(w)
	c.internal.Unlock()

	userMutex.Unlock()
	for w.blocked.Load() {
		runtime.Gosched()
	}
	userMutex.Lock()
}

// SigclockwaitResult reports why Sigclockwait returned.
type SigclockwaitResult int

const (
	WaitSignalled SigclockwaitResult = iota
	WaitTimedOut
	WaitInterrupted
)

// PendingSignal is satisfied by a thread-like type that can report a
// pending, deliverable signal; sched.Thread implements it. Kept as a
// narrow interface here so kmutex has no import-cycle dependency on
// sched.
type PendingSignal interface {
	SignalPending() bool
}

// Sigclockwait behaves like Wait but also wakes when clk reaches
// deadline or when signalSource reports a pending signal, spec.md §4.6.
// On any exit path the waiter re-enters the internal mutex and removes
// itself only if a racing signal/broadcast has not already done so,
// matching the spec's stated race resolution.
func (c *Cond) Sigclockwait(userMutex *Mutex, clk *clock.Clock, deadline clock.Time, signalSource PendingSignal) SigclockwaitResult {
	w := &waiter{}
	c.internal.Lock()
	c.pushLocked(w)
	c.internal.Unlock()

	userMutex.Unlock()

	result := WaitSignalled
	for w.blocked.Load() {
		if !deadline.After(clk.Now()) {
			result = WaitTimedOut
			break
		}
		if signalSource != nil && signalSource.SignalPending() {
			result = WaitInterrupted
			break
		}
		runtime.Gosched()
	}

	if result != WaitSignalled {
		c.internal.Lock()
		c.removeLocked(w)
		c.internal.Unlock()
	}

	userMutex.Lock()
	return result
}

// Signal wakes the head waiter, if any, setting its blocked flag to
// false with release order so the waiter observes every write the
// signaller made beforehand.
func (c *Cond) Signal() {
	c.internal.Lock()
	w := c.head
	if w != nil {
		c.removeLocked(w)
	}
	c.internal.Unlock()
	if w != nil {
		w.blocked.Store(false)
	}
}

// Broadcast wakes every waiter, draining the list.
func (c *Cond) Broadcast() {
	c.internal.Lock()
	head := c.head
	c.head, c.tail = nil, nil
	c.internal.Unlock()
	for w := head; w != nil; {
		next := w.next
		w.blocked.Store(false)
		w = next
	}
}

// Waiting reports the number of threads currently parked on c, for tests
// asserting broadcast drains a known-size list.
func (c *Cond) Waiting() int {
	c.internal.Lock()
	defer c.internal.Unlock()
	n := 0
	for w := c.head; w != nil; w = w.next {
		n++
	}
	return n
}

// errTimedOut is what a sigclockwait-driven blocking syscall returns to
// its caller on WaitTimedOut, per spec.md §7's ETIMEDOUT case.
var errTimedOut = defs.ETIMEDOUT

// ErrTimedOut exposes the mapping for callers building their own
// (value, defs.Err_t) return from a SigclockwaitResult.
func ErrTimedOut() defs.Err_t { return errTimedOut }
