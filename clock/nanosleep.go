package clock

import (
	"runtime"
	"time"
)

// Nanosleep converts a relative request into an absolute deadline against
// whatever clock `now` reads, then yields until either the deadline is
// reached or signalPending reports true, spec.md §4.5: "nanosleep
// converts a relative request to an absolute deadline against the
// requested clock and yields until either the deadline is reached or a
// signal becomes pending; in the latter case it reports interruption and
// returns the remaining time if requested."
//
// now is supplied by the caller rather than fixed to one Clock so that a
// sleep can be requested against any of the four clock ids; sched wires
// the concrete Clock/CPUAccount readers in per spec.md §4.5's four-clock
// list.
func Nanosleep(now func() Time, req time.Duration, signalPending func() bool) (remaining time.Duration, interrupted bool) {
	if req <= 0 {
		return 0, false
	}
	start := now()
	deadline := start.Add(req)
	for {
		cur := now()
		if cur.Sub(start) >= req {
			return 0, false
		}
		if signalPending != nil && signalPending() {
			return deadline.Sub(cur), true
		}
		runtime.Gosched()
	}
}
