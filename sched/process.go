package sched

import (
	"dennix/defs"
	"dennix/fd"
	"dennix/kmutex"
	"dennix/vm"
)

// WaitStatus mirrors the POSIX wait-status encoding enough for waitpid
// callers to distinguish exit code from signal termination.
type WaitStatus struct {
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   int
}

// Process groups threads sharing one address space, spec.md §4.4.
// Grounded on the teacher's Proc_t role as described by tinfo/accnt (the
// concrete proc.go was an empty shell in the retrieval pack — see
// DESIGN.md).
type Process struct {
	Pid     defs.Pid_t
	AS      *vm.AddressSpace
	Threads []*Thread

	// Fds is the descriptor table of spec.md's glossary ("per-process
	// array mapping small non-negative integers to file descriptions"),
	// grounded on original_source/process.h's fd[20] array (see fd.Table).
	Fds *fd.Table
	Cwd *fd.Cwd_t

	Parent   *Process
	Children []*Process

	mu       kmutex.Mutex
	exited   bool
	status   WaitStatus
	waitCond kmutex.Cond

	// ForegroundGroup is the process group id controlling which process
	// a terminal's line discipline routes SIGINT/SIGTSTP/SIGQUIT to,
	// spec.md §4.8's terminal variant.
	ForegroundGroup int
}

// NewProcess constructs an empty process owning as.
func NewProcess(pid defs.Pid_t, as *vm.AddressSpace, parent *Process) *Process {
	p := &Process{Pid: pid, AS: as, Parent: parent, Fds: fd.NewTable(fd.DefaultMaxOpenFiles)}
	if parent != nil {
		parent.Children = append(parent.Children, p)
	}
	return p
}

// AddThread registers t as one of this process's threads.
func (p *Process) AddThread(t *Thread) {
	p.Threads = append(p.Threads, t)
}

// Exit marks every owned thread terminated, records the wait status, and
// wakes anyone blocked in Wait, spec.md §4.4: "mark all owned threads
// terminated, store the wait-status, notify the parent, leave the
// Process object live until waitpid consumes it."
func (p *Process) Exit(status WaitStatus) {
	p.mu.Lock()
	for _, t := range p.Threads {
		t.mu.Lock()
		t.State = Terminated
		t.mu.Unlock()
	}
	p.exited = true
	p.status = status
	p.mu.Unlock()
	p.waitCond.Broadcast()
	p.AS.Destroy()
	p.closeAllFds()
}

// closeAllFds releases every descriptor still open in the table, the
// way a real kernel reclaims an exited process's file descriptions
// before the Process struct itself is reaped by waitpid.
func (p *Process) closeAllFds() {
	if p.Fds == nil {
		return
	}
	for n := 0; n < p.Fds.Len(); n++ {
		p.Fds.Close(n)
	}
}

// Wait blocks until the process has exited, then returns its wait
// status. It does not itself remove the process from its parent's child
// list — a real waitpid reaps bookkeeping the caller owns.
func (p *Process) Wait() WaitStatus {
	p.mu.Lock()
	for !p.exited {
		p.waitCond.Wait(&p.mu)
	}
	s := p.status
	p.mu.Unlock()
	return s
}

// TryWait returns the wait status and true if the process has already
// exited, without blocking.
func (p *Process) TryWait() (WaitStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.exited
}
