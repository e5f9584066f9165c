package clock

import (
	"testing"
	"time"
)

func TestTickAdvancesMonotonicAndRealtime(t *testing.T) {
	c := New()
	m0, r0 := c.Now(), c.RealNow()
	c.Tick(5 * time.Millisecond)
	if c.Now().Sub(m0) != 5*time.Millisecond {
		t.Fatalf("monotonic advanced by %v, want 5ms", c.Now().Sub(m0))
	}
	if c.RealNow().Sub(r0) != 5*time.Millisecond {
		t.Fatalf("realtime advanced by %v, want 5ms", c.RealNow().Sub(r0))
	}
}

func TestCPUAccountSplitsUserAndKernel(t *testing.T) {
	var a CPUAccount
	a.Add(3*time.Millisecond, false)
	a.Add(7*time.Millisecond, true)
	user, sys := a.Split()
	if user != 3*time.Millisecond || sys != 7*time.Millisecond {
		t.Fatalf("got user=%v sys=%v", user, sys)
	}
	if a.Now().Sub(0) != 10*time.Millisecond {
		t.Fatalf("combined account time = %v, want 10ms", a.Now().Sub(0))
	}
}

func TestNanosleepReturnsAfterDeadline(t *testing.T) {
	var cur Time
	now := func() Time { return cur }
	done := make(chan struct{})
	go func() {
		Nanosleep(now, 10, nil)
		close(done)
	}()
	// Advance the fake clock past the requested duration.
	for i := 0; i < 20; i++ {
		cur = Time(i)
	}
	<-done
}

func TestNanosleepInterruptedBySignal(t *testing.T) {
	cur := Time(0)
	now := func() Time { return cur }
	signalled := false
	pending := func() bool { return signalled }

	done := make(chan struct {
		remaining time.Duration
		interrupt bool
	})
	go func() {
		rem, intr := Nanosleep(now, 1_000_000, pending)
		done <- struct {
			remaining time.Duration
			interrupt bool
		}{rem, intr}
	}()
	signalled = true
	got := <-done
	if !got.interrupt {
		t.Fatal("expected Nanosleep to report interruption once a signal is pending")
	}
	if got.remaining <= 0 {
		t.Fatalf("expected positive remaining time on interruption, got %v", got.remaining)
	}
}

func TestNanosleepNonPositiveIsNoop(t *testing.T) {
	rem, intr := Nanosleep(func() Time { return 0 }, 0, nil)
	if rem != 0 || intr {
		t.Fatalf("zero-duration Nanosleep should return immediately, uninterrupted: rem=%v intr=%v", rem, intr)
	}
}
