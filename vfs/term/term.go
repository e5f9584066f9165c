// Package term implements the terminal vnode of spec.md §4.8: "a 4 KiB
// circular line-buffer in cooked mode, with read/write indices and a
// separate line committed index advanced at newline or EOF; keyboard
// input is echoed, erase/kill processing is handled in the line
// discipline; tcsetattr switches between canonical and raw modes;
// TIOCGWINSZ/TIOCSWINSZ get/set window size; the foreground process
// group governs SIGINT/SIGTSTP/SIGQUIT routing." Built on circbuf;
// window size uses golang.org/x/sys/unix.Winsize as the wire payload
// type for the TIOCGWINSZ/TIOCSWINSZ devctl commands.
package term

import (
	"golang.org/x/sys/unix"

	"dennix/circbuf"
	"dennix/defs"
	"dennix/devctl"
	"dennix/kmutex"
	"dennix/refcount"
	"dennix/stat"
	"dennix/vfs"
)

const bufSize = 4096

// Signaler is the narrow capability term needs to route SIGINT/SIGTSTP/
// SIGQUIT to the foreground process group; sched.Process-like types
// implement it. Kept as an interface to avoid an import cycle with
// sched.
type Signaler interface {
	RaiseForegroundSignal(sig int)
}

// Signal numbers term itself needs to name; duplicated from sched's
// table rather than imported, since depending on sched from vfs/term
// would invert the module layering (sched will eventually depend on
// vfs, not the reverse).
const (
	SIGINT  = 2
	SIGQUIT = 3
	SIGTSTP = 20
)

// Terminal is a cooked-mode line-discipline terminal.
type Terminal struct {
	refcount.Counted
	mu       kmutex.Mutex
	buf      *circbuf.Circbuf
	readable kmutex.Cond

	lineCommitted int // offset (relative to buf's tail) up to which a line is ready to read
	canonical     bool
	echo          bool

	winsize unix.Winsize

	fgGroup  int
	signaler Signaler
}

// New constructs a terminal in canonical (cooked) mode with echo on.
func New(signaler Signaler) *Terminal {
	t := &Terminal{buf: circbuf.New(bufSize), canonical: true, echo: true, signaler: signaler}
	t.Init()
	return t
}

func (t *Terminal) IsDir() bool { return false }

func (t *Terminal) Stat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Mode: stat.IFCHR | 0620}, 0
}

// KeyInput feeds one byte of keyboard input through the line discipline,
// spec.md §4.8: erase/kill handling and line commit on newline. Input is
// not echoed; the echo flag is only stored and reported by Tcgetattr.
// erase/kill character codes follow the common ASCII convention (DEL/^U).
func (t *Terminal) KeyInput(b byte) {
	t.mu.Lock()
	switch {
	case b == 0x7f || b == 0x08: // erase (DEL or backspace)
		if t.buf.Used() > t.lineCommitted {
			t.buf.DropLast()
		}
	case b == 0x15: // kill (^U): erase the whole uncommitted line
		for t.buf.Used() > t.lineCommitted {
			t.buf.DropLast()
		}
	case b == 0x03 && t.canonical: // ^C: SIGINT to foreground group
		t.mu.Unlock()
		t.raiseSignal(SIGINT)
		return
	case b == 0x1c && t.canonical: // ^\: SIGQUIT
		t.mu.Unlock()
		t.raiseSignal(SIGQUIT)
		return
	case b == 0x1a && t.canonical: // ^Z: SIGTSTP
		t.mu.Unlock()
		t.raiseSignal(SIGTSTP)
		return
	default:
		t.buf.Write([]byte{b})
		if !t.canonical || b == '\n' {
			t.lineCommitted = t.buf.Used()
		}
	}
	t.mu.Unlock()
	t.readable.Broadcast()
}

func (t *Terminal) raiseSignal(sig int) {
	if t.signaler != nil {
		t.signaler.RaiseForegroundSignal(sig)
	}
}

// Read blocks until a full committed line (canonical mode) or any byte
// (raw mode) is available, then drains what is ready.
func (t *Terminal) Read(dst []byte) (int, defs.Err_t) {
	if len(dst) == 0 {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.lineCommitted == 0 {
		t.readable.Wait(&t.mu)
	}
	n := len(dst)
	if n > t.lineCommitted {
		n = t.lineCommitted
	}
	n = t.buf.Read(dst[:n])
	t.lineCommitted -= n
	return n, 0
}

// Write returns len(src) as the count written without storing or
// displaying the bytes; the physical display is out of scope here.
func (t *Terminal) Write(src []byte) (int, defs.Err_t) {
	return len(src), 0
}

// Tcsetattr switches between canonical and raw modes.
func (t *Terminal) Tcsetattr(canonical, echo bool) {
	t.mu.Lock()
	t.canonical = canonical
	t.echo = echo
	t.mu.Unlock()
}

// Tcgetattr returns the terminal's current canonical/echo state, spec.md
// §8's round-trip law: tcsetattr(fd,a); tcgetattr(fd,&b) ⇒ b==a.
func (t *Terminal) Tcgetattr() (canonical, echo bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canonical, t.echo
}

// Poll implements vfs.Poller. The terminal is readable once a full line
// (canonical mode) or any byte (raw mode) is committed, and is always
// writable (Write never blocks, spec.md §8).
func (t *Terminal) Poll(events uint16) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw := vfs.POLLOUT | vfs.POLLWRNORM
	if t.lineCommitted > 0 {
		raw |= vfs.POLLIN | vfs.POLLRDNORM
	}
	return (raw & events) | (raw & (vfs.POLLERR | vfs.POLLHUP | vfs.POLLNVAL))
}

// Devctl implements vfs.DevctlCapable: TIOCGWINSZ/TIOCSWINSZ get/set the
// window size (arg/result typed as unix.Winsize), TIOCGPGRP/TIOCSPGRP
// get/set the foreground process group (arg/result typed as int).
func (t *Terminal) Devctl(cmd uint32, arg any) (any, defs.Err_t) {
	switch cmd {
	case devctl.TIOCGWINSZ:
		t.mu.Lock()
		ws := t.winsize
		t.mu.Unlock()
		return ws, 0
	case devctl.TIOCSWINSZ:
		ws, ok := arg.(unix.Winsize)
		if !ok {
			return nil, -defs.EINVAL
		}
		t.mu.Lock()
		t.winsize = ws
		t.mu.Unlock()
		return nil, 0
	case devctl.TIOCGPGRP:
		t.mu.Lock()
		g := t.fgGroup
		t.mu.Unlock()
		return g, 0
	case devctl.TIOCSPGRP:
		g, ok := arg.(int)
		if !ok {
			return nil, -defs.EINVAL
		}
		t.mu.Lock()
		t.fgGroup = g
		t.mu.Unlock()
		return nil, 0
	default:
		return nil, -defs.ENOTTY
	}
}
