// Package pipe implements the pipe vnode pair of spec.md §4.8: "fixed-
// size circular byte buffer (PIPE_BUF bytes) protected by a mutex and two
// condvars (readable, writable). Read end and write end are distinct
// vnodes sharing the buffer; last drop of one end marks the peer hung
// up, causing blocked readers to unblock (returning end-of-file) and
// blocked writers to fault (broken-pipe signal)." Built on circbuf +
// kmutex.
package pipe

import (
	"dennix/circbuf"
	"dennix/defs"
	"dennix/kmutex"
	"dennix/refcount"
	"dennix/stat"
	"dennix/vfs"
)

// PIPE_BUF is the fixed pipe buffer capacity, the POSIX-guaranteed
// atomic-write size.
const PIPE_BUF = 4096

// shared is the buffer and synchronization state both ends reference.
type shared struct {
	mu       kmutex.Mutex
	buf      *circbuf.Circbuf
	readable kmutex.Cond
	writable kmutex.Cond

	readOpen  bool
	writeOpen bool
}

// End is one side of a pipe (reader or writer); each is its own vnode.
type End struct {
	refcount.Counted
	s       *shared
	isWrite bool
}

// New constructs a connected pipe pair: (readEnd, writeEnd).
func New() (*End, *End) {
	s := &shared{buf: circbuf.New(PIPE_BUF), readOpen: true, writeOpen: true}
	r := &End{s: s, isWrite: false}
	w := &End{s: s, isWrite: true}
	r.Init()
	w.Init()
	return r, w
}

func (e *End) IsDir() bool { return false }

func (e *End) Stat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Mode: stat.IFIFO | 0600}, 0
}

// Close marks this end closed, whatever its reference count, and wakes
// the peer so it observes end-of-file/EPIPE.
func (e *End) Close() {
	e.s.mu.Lock()
	if e.isWrite {
		e.s.writeOpen = false
	} else {
		e.s.readOpen = false
	}
	e.s.mu.Unlock()
	e.s.readable.Broadcast()
	e.s.writable.Broadcast()
}

// Read implements vfs.StreamReader for the read end.
func (e *End) Read(dst []byte) (int, defs.Err_t) {
	if e.isWrite {
		return 0, -defs.EINVAL
	}
	if len(dst) == 0 {
		return 0, 0
	}
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Empty() && s.writeOpen {
		s.readable.Wait(&s.mu)
	}
	if s.buf.Empty() && !s.writeOpen {
		return 0, 0 // end-of-file
	}
	n := s.buf.Read(dst)
	s.writable.Broadcast()
	return n, 0
}

// Write implements vfs.StreamWriter for the write end. Spec.md §4.8:
// writing to a pipe whose read end has hung up faults with a broken-pipe
// signal; this module reports it as EPIPE, the syscall-ABI-visible
// counterpart (raising SIGPIPE itself is the caller's — sched's —
// responsibility once the ABI layer exists).
func (e *End) Write(src []byte) (int, defs.Err_t) {
	if !e.isWrite {
		return 0, -defs.EINVAL
	}
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readOpen {
		return 0, -defs.EPIPE
	}
	written := 0
	for written < len(src) {
		for s.buf.Full() && s.readOpen {
			s.writable.Wait(&s.mu)
		}
		if !s.readOpen {
			if written > 0 {
				return written, 0
			}
			return 0, -defs.EPIPE
		}
		n := s.buf.Write(src[written:])
		written += n
		s.readable.Broadcast()
	}
	return written, 0
}

// Poll implements vfs.Poller. A read end is readable once the buffer
// holds data or the write end has hung up (the hung-up case reads as
// ready-for-end-of-file); a write end is writable once the buffer has
// room or the read end has hung up (ready-for-EPIPE). POLLHUP/POLLERR
// are reported whenever the peer has hung up, regardless of events.
func (e *End) Poll(events uint16) uint16 {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw uint16
	if e.isWrite {
		if !s.buf.Full() || !s.readOpen {
			raw |= vfs.POLLOUT | vfs.POLLWRNORM
		}
		if !s.readOpen {
			raw |= vfs.POLLERR
		}
	} else {
		if !s.buf.Empty() || !s.writeOpen {
			raw |= vfs.POLLIN | vfs.POLLRDNORM
		}
		if !s.writeOpen {
			raw |= vfs.POLLHUP
		}
	}
	return (raw & events) | (raw & (vfs.POLLERR | vfs.POLLHUP | vfs.POLLNVAL))
}
