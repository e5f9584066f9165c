// Package vfs implements the vnode layer and file description of
// spec.md §4.7: a polymorphic, reference-counted vnode abstraction, path
// resolution (openat), and the seek-offset-owning file description that
// sits between a descriptor and its vnode. Grounded on
// biscuit/src/fd/fd.go (Fd_t, Cwd_t) and biscuit/src/fs/blk.go's
// Disk_i/Blockmem_i style of small capability interfaces, generalized
// here into the vnode capability set spec.md §3 lists (a vnode may
// support any subset of read/write/lookup/create/readdir/link-target/
// devctl; type assertions onto the narrow interfaces below are how a
// caller discovers which).
package vfs

import (
	"dennix/defs"
	"dennix/stat"
	"dennix/ustr"
)

// Vnode is the capability every concrete vnode variant implements:
// reference counting (via an embedded refcount.Counted) and stat.
// Everything else (read, write, directory operations, symlink target,
// device control) is an optional capability discovered with a type
// assertion onto the narrower interfaces below, mirroring the way
// fs.Disk_i and fs.Blockmem_i in the teacher are kept deliberately small
// and composed rather than one monolithic interface.
type Vnode interface {
	Ref()
	Unref() bool
	Stat() (stat.Stat_t, defs.Err_t)
	IsDir() bool
}

// Reader is implemented by vnodes that support positioned reads
// (regular files, the block device). Pipes do not implement Reader:
// vfs/pipe is non-seekable and implements StreamReader instead.
type Reader interface {
	Pread(dst []byte, off int64) (int, defs.Err_t)
}

// Writer is implemented by vnodes that support positioned writes.
type Writer interface {
	Pwrite(src []byte, off int64) (int, defs.Err_t)
}

// Truncater is implemented by vnodes whose size can be changed in place
// (the in-memory regular file, spec.md §4.8).
type Truncater interface {
	Ftruncate(size int64) defs.Err_t
}

// Seekable is implemented by vnodes whose file description offset is
// meaningful; non-seekable vnodes (pipes, sockets, terminals) are
// addressed with plain Read/Write instead.
type Seekable interface {
	Size() int64
}

// StreamReader/StreamWriter are implemented by non-seekable vnodes
// (pipe ends, sockets, the terminal) whose file description ignores the
// offset entirely, spec.md §4.7: "non-seekable vnodes ignore the
// offset."
type StreamReader interface {
	Read(dst []byte) (int, defs.Err_t)
}
type StreamWriter interface {
	Write(src []byte) (int, defs.Err_t)
}

// Dirent is one projected directory entry, spec.md §4.7: "Directory
// reads project the directory's contents into a variable-width record
// sequence (d_ino, d_type, d_name) at monotonically increasing logical
// offsets."
type Dirent struct {
	Ino  uint64
	Type uint8
	Name ustr.Ustr
}

// Directory entry types for Dirent.Type.
const (
	DT_UNKNOWN uint8 = 0
	DT_REG     uint8 = 1
	DT_DIR     uint8 = 2
	DT_LNK     uint8 = 3
	DT_FIFO    uint8 = 4
	DT_SOCK    uint8 = 5
)

// DirOps is implemented by directory vnodes: lookup, creation, and a
// readdir cursor advancing by a caller-opaque logical offset.
type DirOps interface {
	Lookup(name ustr.Ustr) (Vnode, defs.Err_t)
	Create(name ustr.Ustr, dir bool, mode uint32) (Vnode, defs.Err_t)
	Unlink(name ustr.Ustr) defs.Err_t
	Readdir(offset int64) (Dirent, int64, defs.Err_t) // next==offset at end
	Parent() Vnode
}

// LinkTarget is implemented by symlink vnodes.
type LinkTarget interface {
	GetLinkTarget() (ustr.Ustr, defs.Err_t)
}

// Poll event bits, spec.md §8 "Poll/select": "poll accepts {fd, events}
// tuples and returns {revents}; event bits are {in, rdnorm, rdband, pri,
// out, wrnorm, wrband, err, hup, nval}." Grounded on
// original_source/kernel/include/dennix/poll.h's POLLIN..POLLNVAL
// #defines.
const (
	POLLIN     uint16 = 1 << 0
	POLLRDNORM uint16 = 1 << 1
	POLLRDBAND uint16 = 1 << 2
	POLLPRI    uint16 = 1 << 3
	POLLOUT    uint16 = 1 << 4
	POLLWRNORM uint16 = 1 << 5
	POLLWRBAND uint16 = 1 << 6
	POLLERR    uint16 = 1 << 7
	POLLHUP    uint16 = 1 << 8
	POLLNVAL   uint16 = 1 << 9
)

// Poller is implemented by vnodes whose readiness can be queried without
// blocking — pipe ends, stream sockets, and the terminal — spec.md §3's
// vnode capability set includes "poll". Poll returns the subset of
// events currently satisfied, plus POLLERR/POLLHUP/POLLNVAL whenever
// applicable regardless of what was requested, mirroring
// original_source's per-vnode "virtual short poll()" override (e.g.
// kernel/src/mouse.cpp's MouseDevice::poll()).
type Poller interface {
	Poll(events uint16) uint16
}

// DevctlCapable is implemented by device-like vnodes (the terminal) that
// accept ioctl-style commands, spec.md §6. arg/result
// are typed Go values (a unix.Winsize, an int, ...) rather than a raw
// pointer-sized word: spec.md §1 explicitly excludes syscall-ABI
// marshalling, so there is no user-space buffer to address by uintptr
// here — only the already-decoded payload a higher (out-of-scope) ABI
// layer would have copied in.
type DevctlCapable interface {
	Devctl(cmd uint32, arg any) (any, defs.Err_t)
}
