// Package dir implements the in-memory directory vnode of spec.md §4.8:
// "vector of (name, child-vnode) pairs plus a back-pointer to the parent
// for .. resolution; root's parent is itself." Grounded on the same
// small-capability-interface composition vfs.DirOps describes.
package dir

import (
	"sync"

	"dennix/defs"
	"dennix/refcount"
	"dennix/stat"
	"dennix/ustr"
	"dennix/vfs"
	"dennix/vfs/regfile"
)

type entry struct {
	name  ustr.Ustr
	child vfs.Vnode
}

// Dir is an in-memory directory.
type Dir struct {
	refcount.Counted
	mu      sync.Mutex
	entries []entry
	parent  vfs.Vnode // self for the root, per spec.md §4.8
	mode    uint32
}

// NewRoot constructs the filesystem root, whose parent is itself.
func NewRoot(mode uint32) *Dir {
	d := &Dir{mode: mode}
	d.Init()
	d.parent = d
	return d
}

// New constructs a directory whose parent is parent.
func New(parent vfs.Vnode, mode uint32) *Dir {
	d := &Dir{mode: mode, parent: parent}
	d.Init()
	return d
}

func (d *Dir) IsDir() bool { return true }

func (d *Dir) Stat() (stat.Stat_t, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return stat.Stat_t{Mode: stat.IFDIR | d.mode, Nlink: uint32(2 + d.subdirCountLocked())}, 0
}

func (d *Dir) subdirCountLocked() int {
	n := 0
	for _, e := range d.entries {
		if e.child.IsDir() {
			n++
		}
	}
	return n
}

func (d *Dir) Parent() vfs.Vnode { return d.parent }

func (d *Dir) Lookup(name ustr.Ustr) (vfs.Vnode, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.name.Eq(name) {
			return e.child, 0
		}
	}
	return nil, -defs.ENOENT
}

// Create adds a new child vnode; callers supply a regfile/dir/symlink
// appropriate to `dir`/`mode` by calling Link after constructing it, or
// use Create for the common regular-file/subdirectory case.
func (d *Dir) Create(name ustr.Ustr, isDir bool, mode uint32) (vfs.Vnode, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.name.Eq(name) {
			return nil, -defs.EEXIST
		}
	}
	var child vfs.Vnode
	if isDir {
		child = New(d, mode)
	} else {
		child = regfile.New(mode)
	}
	d.entries = append(d.entries, entry{name: append(ustr.Ustr{}, name...), child: child})
	return child, 0
}

// Link inserts an already-constructed vnode under name (used for
// symlinks and other variants Create does not build directly).
func (d *Dir) Link(name ustr.Ustr, child vfs.Vnode) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.name.Eq(name) {
			return -defs.EEXIST
		}
	}
	d.entries = append(d.entries, entry{name: append(ustr.Ustr{}, name...), child: child})
	return 0
}

func (d *Dir) Unlink(name ustr.Ustr) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.name.Eq(name) {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return 0
		}
	}
	return -defs.ENOENT
}

func (d *Dir) Readdir(offset int64) (vfs.Dirent, int64, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset < 0 || int(offset) >= len(d.entries) {
		return vfs.Dirent{}, offset, 0
	}
	e := d.entries[offset]
	typ := vfs.DT_REG
	if e.child.IsDir() {
		typ = vfs.DT_DIR
	}
	return vfs.Dirent{Ino: uint64(offset) + 1, Type: typ, Name: e.name}, offset + 1, 0
}
