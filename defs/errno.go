// Package defs holds the type and constant vocabulary shared by every
// kernel package: error kinds, thread/process ids, and device ids.
package defs

import "golang.org/x/sys/unix"

// Err_t is a tagged kernel error kind. Every core operation that can fail
// returns a (value, Err_t) pair; a zero Err_t means success. The concrete
// values are taken from golang.org/x/sys/unix so that the ABI's
// negated-errno convention (spec.md §6/§7) lines up with a real syscall
// ABI instead of inventing numbers.
type Err_t int

// Fixed error kinds. Existing numeric values must never be reused, per
// spec.md §7; new kinds may be appended.
const (
	E2BIG        Err_t = Err_t(unix.E2BIG)
	EACCES       Err_t = Err_t(unix.EACCES)
	EAGAIN       Err_t = Err_t(unix.EAGAIN)
	EBADF        Err_t = Err_t(unix.EBADF)
	EBUSY        Err_t = Err_t(unix.EBUSY)
	ECHILD       Err_t = Err_t(unix.ECHILD)
	EEXIST       Err_t = Err_t(unix.EEXIST)
	EFAULT       Err_t = Err_t(unix.EFAULT)
	EINTR        Err_t = Err_t(unix.EINTR)
	EINVAL       Err_t = Err_t(unix.EINVAL)
	EIO          Err_t = Err_t(unix.EIO)
	EISDIR       Err_t = Err_t(unix.EISDIR)
	ELOOP        Err_t = Err_t(unix.ELOOP)
	EMFILE       Err_t = Err_t(unix.EMFILE)
	ENAMETOOLONG Err_t = Err_t(unix.ENAMETOOLONG)
	ENOENT       Err_t = Err_t(unix.ENOENT)
	ENOMEM       Err_t = Err_t(unix.ENOMEM)
	ENOSPC       Err_t = Err_t(unix.ENOSPC)
	ENOSYS       Err_t = Err_t(unix.ENOSYS)
	ENOTDIR      Err_t = Err_t(unix.ENOTDIR)
	ENOTTY       Err_t = Err_t(unix.ENOTTY)
	EOVERFLOW    Err_t = Err_t(unix.EOVERFLOW)
	EPERM        Err_t = Err_t(unix.EPERM)
	EPIPE        Err_t = Err_t(unix.EPIPE)
	ERANGE       Err_t = Err_t(unix.ERANGE)
	ESPIPE       Err_t = Err_t(unix.ESPIPE)
	ESRCH        Err_t = Err_t(unix.ESRCH)
	ETIMEDOUT    Err_t = Err_t(unix.ETIMEDOUT)
	EWOULDBLOCK  Err_t = Err_t(unix.EWOULDBLOCK)
	EXDEV        Err_t = Err_t(unix.EXDEV)

	// ENOHEAP is a kernel-internal extension (not in the fixed errno
	// list) signalling that a bounded internal resource (kernel heap,
	// work-item quota) was exhausted while servicing a system call;
	// syscalls translate it to ENOMEM at the ABI boundary (spec.md §7:
	// "allocation failure anywhere in a system call ... returns ENOMEM").
	ENOHEAP Err_t = Err_t(1 << 16)

	// Socket-specific additions (spec.md §7 permits appending new kinds).
	// Used only by vfs/sock's bind/connect/accept state machine, which
	// has no entry in the fixed list's required set.
	EADDRINUSE   Err_t = Err_t(unix.EADDRINUSE)
	ECONNREFUSED Err_t = Err_t(unix.ECONNREFUSED)
	ENOTCONN     Err_t = Err_t(unix.ENOTCONN)
	EISCONN      Err_t = Err_t(unix.EISCONN)
)

// String renders the error kind the way a panic/trap dump would.
func (e Err_t) String() string {
	if e == 0 {
		return "success"
	}
	if e == ENOHEAP {
		return "ENOHEAP"
	}
	return unix.Errno(e).Error()
}

// Tid_t identifies a thread, unique for the lifetime of the kernel.
type Tid_t int

// Pid_t identifies a process.
type Pid_t int

// Device identifiers for the vnode families the core itself produces
// (console, Unix sockets, /dev/null, the cached raw-disk device, the
// pprof-backed stats device). Concrete driver-backed devices (AHCI, PS/2,
// framebuffer, ...) are out of scope per spec.md §1 and are not named
// here; they would be assigned ids by the (unimplemented) device layer.
const (
	D_CONSOLE int = 1 // console/terminal device
	D_SUD         = 2 // Unix datagram socket device
	D_SUS         = 3 // Unix stream socket device
	D_DEVNULL     = 4 // /dev/null sink
	D_RAWDISK     = 5 // cached block device
	D_STAT        = 6 // stat/rusage export device
	D_PROF        = 7 // pprof-profile export device (see sched.Profiler)
	D_FIRST       = D_CONSOLE
	D_LAST        = D_PROF
)

// Mkdev encodes a major/minor device pair into a single identifier.
func Mkdev(maj, min int) uint {
	if min > 0xff {
		panic("defs.Mkdev: minor out of range")
	}
	return uint(maj)<<8 | uint(min)
}

// Unmkdev decodes a device identifier into its major/minor components.
func Unmkdev(d uint) (maj, min int) {
	return int(d >> 8), int(d & 0xff)
}
