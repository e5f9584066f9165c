// Package fd models the open-file-descriptor table entry and the
// per-process current-working-directory, adapted from
// biscuit/src/fd/fd.go's Fd_t/Cwd_t. Descriptor operations are expressed
// against vfs.OpenFile rather than the teacher's fdops.Fdops_i interface,
// since this module's vnode/file-description split (spec.md §4.7) is
// richer than the teacher's single-interface fd abstraction.
package fd

import (
	"sync"

	"dennix/ustr"
)

// Permission bits a descriptor was opened with.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Openable is the narrow capability fd needs from whatever sits behind a
// descriptor (vfs.OpenFile in this module); kept as an interface so fd
// has no import-cycle dependency on vfs.
type Openable interface {
	Reopen() error
	Close() error
}

// Fd_t represents one open file descriptor, adapted from the teacher's
// Fd_t.
type Fd_t struct {
	File  Openable
	Perms int
}

// Copyfd duplicates fd by reopening its underlying file.
func Copyfd(f *Fd_t) (*Fd_t, error) {
	nf := &Fd_t{}
	*nf = *f
	if err := nf.File.Reopen(); err != nil {
		return nil, err
	}
	return nf, nil
}

// ClosePanic closes f and panics on failure, for teardown paths that
// must not fail, exactly as the teacher's Close_panic.
func ClosePanic(f *Fd_t) {
	if err := f.File.Close(); err != nil {
		panic("fd: close must succeed: " + err.Error())
	}
}

// Cwd_t tracks a process's current working directory, adapted from the
// teacher's Cwd_t.
type Cwd_t struct {
	mu   sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

// Lock serializes concurrent chdirs, as the teacher's embedded
// sync.Mutex did.
func (cwd *Cwd_t) Lock()   { cwd.mu.Lock() }
func (cwd *Cwd_t) Unlock() { cwd.mu.Unlock() }

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(f *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: f, Path: ustr.MkUstrRoot()}
}
