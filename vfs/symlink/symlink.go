// Package symlink implements the symlink vnode of spec.md §4.8:
// "immutable UTF-8 target string; getLinkTarget returns an owned copy."
package symlink

import (
	"dennix/defs"
	"dennix/refcount"
	"dennix/stat"
	"dennix/ustr"
)

// Symlink is an immutable symbolic link.
type Symlink struct {
	refcount.Counted
	target ustr.Ustr
}

// New constructs a symlink pointing at target. target is validated UTF-8
// already (see ustr.MkUstrFromBytes); New does not re-validate it.
func New(target ustr.Ustr) *Symlink {
	s := &Symlink{target: append(ustr.Ustr{}, target...)}
	s.Init()
	return s
}

func (s *Symlink) IsDir() bool { return false }

func (s *Symlink) Stat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Mode: stat.IFLNK | 0777, Size: uint64(len(s.target))}, 0
}

// GetLinkTarget returns an owned copy of the link target, spec.md §4.8.
func (s *Symlink) GetLinkTarget() (ustr.Ustr, defs.Err_t) {
	return append(ustr.Ustr{}, s.target...), 0
}
