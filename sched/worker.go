package sched

import "dennix/kmutex"

// Job is one single-fire unit of work queued for the worker thread,
// spec.md §4.11: "the job struct contains function pointer, context, and
// a next link; the caller owns the struct's storage." Callers embed Job
// in their own struct and pass a pointer to it; the Worker never
// allocates or frees a Job itself.
type Job struct {
	Fn   func(ctx any)
	Ctx  any
	next *Job
}

// Worker runs one kernel thread's work loop, spec.md §4.11: "under
// interrupts-disabled it atomically steals the current job list head,
// re-enables interrupts, runs each job in order, then yields if the next
// pickup finds nothing." Grounded on the single-producer/single-consumer
// job queue idiom implied by "addJob is called with interrupts disabled
// (typically from an interrupt handler)" — modeled here with a plain
// mutex standing in for the disable/enable-interrupts critical section,
// since this module has no real interrupt controller.
type Worker struct {
	mu   kmutex.Mutex
	head *Job
	tail *Job
}

// AddJob appends job to the tail of the queue. Callers invoke this from
// what would be an interrupt handler in a real kernel; here it is simply
// required to be safe to call concurrently with Drain, which it is.
func (w *Worker) AddJob(job *Job) {
	job.next = nil
	w.mu.Lock()
	if w.tail == nil {
		w.head, w.tail = job, job
	} else {
		w.tail.next = job
		w.tail = job
	}
	w.mu.Unlock()
}

// Drain atomically steals the entire current job list and runs each job
// in order, returning the number of jobs run. It is the body of the
// worker thread's loop; the caller is expected to yield and call Drain
// again when it returns 0.
func (w *Worker) Drain() int {
	w.mu.Lock()
	job := w.head
	w.head, w.tail = nil, nil
	w.mu.Unlock()

	n := 0
	for j := job; j != nil; {
		next := j.next
		j.Fn(j.Ctx)
		n++
		j = next
	}
	return n
}
