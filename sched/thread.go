// Package sched implements the scheduler, threads, and processes of
// spec.md §4.4, the worker thread of §4.11, and signal delivery/
// sigtimedwait from §4.4's "Signals" paragraph. Grounded on
// biscuit/src/tinfo/tinfo.go's per-thread note (state, killed/doomed
// flags, kill channel+cond) reshaped to pass the owning *Thread
// explicitly: the teacher's Current()/SetCurrent() rely on
// runtime.Gptr/Setgptr, a goroutine-local-storage hook that only exists
// in Biscuit's forked Go runtime and has no stock-Go equivalent, so every
// operation here takes its Thread as an explicit parameter instead.
package sched

import (
	"dennix/clock"
	"dennix/defs"
	"dennix/kmutex"
	"dennix/vm"
)

// State is a thread's scheduling state.
type State int

const (
	Runnable State = iota
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// InterruptContext stands in for the saved register set a real kernel
// would restore on context switch, spec.md §4.4: "Entry saves the
// departing thread's register state into its InterruptContext ...
// returns its saved context to the CPU exit path." Only the fields an
// in-Go simulation can meaningfully observe are kept.
type InterruptContext struct {
	EntryPoint uintptr
	StackTop   uintptr
	Regs       [8]uintptr
}

// Thread is one schedulable unit of execution, spec.md §4.4. Grounded on
// tinfo.Tnote_t's Killed/Isdoomed/Killnaps fields.
type Thread struct {
	Tid   defs.Tid_t
	Proc  *Process
	State State
	Ctx   InterruptContext

	CPU clock.CPUAccount

	mu       kmutex.Mutex
	killed   bool
	doomed   bool
	killCond kmutex.Cond

	sigMu      kmutex.Mutex
	sigPending []int
	sigCond    kmutex.Cond
	sigMask    uint32

	prev, next *Thread // runnable ring linkage; owned by the Scheduler
}

// NewThread allocates a thread ready to run entryPoint on a fresh stack,
// spec.md §4.4: "allocate a kernel stack, install an InterruptContext at
// its top prepared to return into a chosen entry address with a given
// initial register set."
func NewThread(tid defs.Tid_t, proc *Process, entryPoint, stackTop uintptr) *Thread {
	return &Thread{
		Tid:   tid,
		Proc:  proc,
		State: Runnable,
		Ctx:   InterruptContext{EntryPoint: entryPoint, StackTop: stackTop},
	}
}

// Kill marks the thread killed, as later reported by Killed, and wakes
// anything waiting on its kill condvar. SignalPending does not consult
// the killed flag.
func (t *Thread) Kill() {
	t.mu.Lock()
	t.killed = true
	t.mu.Unlock()
	t.killCond.Broadcast()
}

// Killed reports whether Kill has been called.
func (t *Thread) Killed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

// Doom marks the thread for forced termination regardless of masking —
// tinfo.Tnote_t's Isdoomed, used for a process-wide SIGKILL.
func (t *Thread) Doom() {
	t.mu.Lock()
	t.doomed = true
	t.mu.Unlock()
}

// Doomed reports whether the thread is marked doomed.
func (t *Thread) Doomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doomed
}

// AddressSpace returns the address space this thread executes in —
// always its owning process's, since spec.md's scope has no per-thread
// address spaces.
func (t *Thread) AddressSpace() *vm.AddressSpace { return t.Proc.AS }

// FaultTrace disassembles the instruction at this thread's saved entry
// point for a trap diagnostic dump, code being the bytes the page-fault
// or general-protection handler copied out of the faulting address.
func (t *Thread) FaultTrace(code []byte) (string, error) {
	return DisassembleFault(code, uint64(t.Ctx.EntryPoint))
}
