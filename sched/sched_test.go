package sched

import (
	"testing"
	"time"

	"dennix/clock"
	"dennix/mem"
	"dennix/vm"
)

func newSpace() *vm.AddressSpace {
	a := mem.NewAllocator(16, 0)
	return vm.NewKernel(a)
}

func TestRingRoundRobinSkipsNonRunnable(t *testing.T) {
	var r Ring
	a := &Thread{State: Runnable}
	b := &Thread{State: Blocked}
	c := &Thread{State: Runnable}
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	first, ok := r.Next()
	if !ok {
		t.Fatal("expected a runnable thread")
	}
	second, ok := r.Next()
	if !ok {
		t.Fatal("expected a second runnable thread")
	}
	if first == second {
		t.Fatal("round-robin should alternate between the two runnable threads, not repeat one")
	}
	if first != a && first != c {
		t.Fatal("blocked thread b should never be returned")
	}
	if second != a && second != c {
		t.Fatal("blocked thread b should never be returned")
	}
}

func TestRingFallsBackWhenNothingRunnable(t *testing.T) {
	var r Ring
	a := &Thread{State: Blocked}
	r.Insert(a)
	if _, ok := r.Next(); ok {
		t.Fatal("expected no runnable thread")
	}
}

func TestSchedulerFallsBackToIdle(t *testing.T) {
	idle := &Thread{State: Runnable}
	s := NewScheduler(idle, clock.New())
	got := s.Enter(TimerIRQ)
	if got != idle {
		t.Fatal("expected Enter to fall back to the idle thread when the ring is empty")
	}
}

func TestSchedulerDispatchesRunnableThreads(t *testing.T) {
	idle := &Thread{State: Runnable}
	s := NewScheduler(idle, clock.New())
	proc := NewProcess(1, newSpace(), nil)
	th := NewThread(1, proc, 0, 0)
	s.AddThread(th)

	got := s.Enter(Yield)
	if got != th {
		t.Fatalf("expected dispatched thread to be th, got %v", got)
	}
	if s.RunnableCount() != 1 {
		t.Fatalf("expected 1 thread in the ring, got %d", s.RunnableCount())
	}

	s.RemoveThread(th)
	if s.RunnableCount() != 0 {
		t.Fatal("RemoveThread should excise the thread from the ring")
	}
	if got := s.Enter(Yield); got != idle {
		t.Fatal("expected fallback to idle after removing the only runnable thread")
	}
}

func TestProcessExitNotifiesWaiters(t *testing.T) {
	proc := NewProcess(2, newSpace(), nil)
	th := NewThread(1, proc, 0, 0)
	proc.AddThread(th)

	done := make(chan WaitStatus)
	go func() { done <- proc.Wait() }()

	// Give the waiter a moment to block before exiting.
	time.Sleep(time.Millisecond)
	proc.Exit(WaitStatus{Exited: true, ExitCode: 7})

	got := <-done
	if !got.Exited || got.ExitCode != 7 {
		t.Fatalf("unexpected wait status: %+v", got)
	}
	if th.State != Terminated {
		t.Fatal("Exit should mark every owned thread Terminated")
	}
	if status, exited := proc.TryWait(); !exited || status.ExitCode != 7 {
		t.Fatal("TryWait should report the exited status without blocking")
	}
}

func TestSignalRaiseAndPopPending(t *testing.T) {
	th := &Thread{}
	if th.SignalPending() {
		t.Fatal("fresh thread should have no pending signal")
	}
	th.Raise(SIGUSR1)
	if !th.SignalPending() {
		t.Fatal("expected a pending signal after Raise")
	}
	sig, ok := th.PopPending()
	if !ok || sig != SIGUSR1 {
		t.Fatalf("PopPending = %d, %v, want SIGUSR1, true", sig, ok)
	}
	if th.SignalPending() {
		t.Fatal("signal should no longer be pending after PopPending")
	}
}

func TestSignalMaskSuppressesPending(t *testing.T) {
	th := &Thread{}
	th.SetMask(1 << SIGUSR1)
	th.Raise(SIGUSR1)
	if th.SignalPending() {
		t.Fatal("a masked signal must not count as pending")
	}
	if _, ok := th.PopPending(); ok {
		t.Fatal("PopPending must not return a masked signal")
	}
}

func TestSigtimedWaitDeliversMatchingSignal(t *testing.T) {
	th := &Thread{}
	c := clock.New()

	done := make(chan SigtimedwaitResult)
	go func() {
		deadline := c.Now().Add(time.Hour)
		done <- th.SigtimedWait([]int{SIGUSR1, SIGUSR2}, c, deadline)
	}()
	time.Sleep(time.Millisecond)
	th.Raise(SIGUSR2)

	got := <-done
	if !got.Delivered || got.Signal != SIGUSR2 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSigtimedWaitTimesOut(t *testing.T) {
	th := &Thread{}
	c := clock.New()
	deadline := c.Now() // already past
	got := th.SigtimedWait([]int{SIGUSR1}, c, deadline)
	if !got.TimedOut {
		t.Fatalf("expected TimedOut, got %+v", got)
	}
}

func TestDefaultDispositionTable(t *testing.T) {
	cases := map[int]Disposition{
		SIGKILL: DispTerminate,
		SIGSEGV: DispCoreDump,
		SIGCHLD: DispIgnore,
		SIGSTOP: DispStop,
		SIGCONT: DispContinue,
	}
	for sig, want := range cases {
		if got := DefaultDisposition(sig); got != want {
			t.Fatalf("DefaultDisposition(%d) = %v, want %v", sig, got, want)
		}
	}
}

func TestWorkerDrainRunsJobsInOrder(t *testing.T) {
	var w Worker
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		w.AddJob(&Job{Fn: func(ctx any) { order = append(order, ctx.(int)) }, Ctx: i})
	}
	n := w.Drain()
	if n != 3 {
		t.Fatalf("Drain ran %d jobs, want 3", n)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
	if w.Drain() != 0 {
		t.Fatal("a second Drain with no new jobs should run nothing")
	}
}
