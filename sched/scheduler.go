package sched

import (
	"dennix/clock"
	"dennix/kmutex"
)

// EntryReason names one of the three occasions spec.md §4.4 lists for
// entering the scheduler: "the periodic timer IRQ, an explicit yield,
// and the reschedule software interrupt."
type EntryReason int

const (
	TimerIRQ EntryReason = iota
	Yield
	RescheduleIPI
)

// Scheduler holds the single-CPU runnable ring and the always-present
// idle thread it falls back to, spec.md §4.4: "single-CPU cooperative
// preemption ... falling back to the idle thread if the list is empty."
type Scheduler struct {
	mu      kmutex.Mutex
	ring    Ring
	idle    *Thread
	current *Thread

	Clock *clock.Clock

	// Profiler samples the departing thread's program counter on every
	// TimerIRQ entry, turning the existing periodic timer into a CPU
	// profiler's sampling clock (see Profiler).
	Profiler *Profiler
}

// NewScheduler constructs a Scheduler with idle as its fallback thread.
// idle is never inserted into the runnable ring; it is returned directly
// by Enter whenever the ring has nothing runnable.
func NewScheduler(idle *Thread, clk *clock.Clock) *Scheduler {
	return &Scheduler{idle: idle, Clock: clk, Profiler: NewProfiler()}
}

// AddThread splices t into the runnable ring.
func (s *Scheduler) AddThread(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Insert(t)
}

// RemoveThread excises t from the runnable ring, spec.md §4.4 thread
// destruction.
func (s *Scheduler) RemoveThread(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Remove(t)
}

// Current returns the thread the scheduler most recently dispatched.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Enter picks the next thread to run, spec.md §4.4: "picks the head of
// the runnable ring-list (round-robin, skipping non-runnable threads and
// falling back to the idle thread if the list is empty), activates the
// successor's address space, and returns its saved context to the CPU
// exit path." The departing thread's context is assumed already saved by
// the caller (the interrupt/trap entry path) before Enter is invoked;
// Enter only performs the pick-and-activate half.
func (s *Scheduler) Enter(reason EntryReason) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason == TimerIRQ && s.current != nil && s.Profiler != nil {
		s.Profiler.Sample(s.current.Tid, s.current.Ctx.EntryPoint)
	}

	next, ok := s.ring.Next()
	if !ok {
		next = s.idle
	}
	s.current = next
	return next
}

// RunnableCount reports how many threads are currently linked into the
// ring (idle excluded), for tests asserting ring membership after
// AddThread/RemoveThread.
func (s *Scheduler) RunnableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len()
}
