package vfs

import (
	"dennix/defs"
	"dennix/ustr"
)

// SYMLOOP_MAX bounds symlink-following recursion during path resolution,
// spec.md §4.7.
const SYMLOOP_MAX = 20

// Openat resolves path against start, spec.md §4.7: "resolves a path
// iteratively: strip leading slashes, split on the next slash, and at
// each step call the current directory's lookup capability, handling .
// and .., following symlinks up to SYMLOOP_MAX, and honouring O_NOFOLLOW
// on the final component. Creation (O_CREAT) is atomic with respect to
// an existing last component when combined with O_EXCL."
func Openat(start Vnode, path ustr.Ustr, flags int, mode uint32) (Vnode, defs.Err_t) {
	return openat(start, path, flags, mode, 0)
}

func openat(start Vnode, path ustr.Ustr, flags int, mode uint32, depth int) (Vnode, defs.Err_t) {
	if depth > SYMLOOP_MAX {
		return nil, -defs.ELOOP
	}

	cur := start
	rest := path
	for {
		var head ustr.Ustr
		var ok bool
		head, rest, ok = rest.Split()
		if !ok {
			// Fully resolved.
			return cur, 0
		}
		last := len(rest) == 0

		dir, isDir := cur.(DirOps)
		if !isDir {
			return nil, -defs.ENOTDIR
		}

		if head.Isdot() {
			if last {
				return cur, 0
			}
			continue
		}
		if head.Isdotdot() {
			parent := dir.Parent()
			if parent == nil {
				parent = cur // root is its own parent, spec.md §4.8
			}
			cur = parent
			if last {
				return cur, 0
			}
			continue
		}

		child, err := dir.Lookup(head)
		if err != 0 {
			if err == -defs.ENOENT && last && flags&O_CREAT != 0 {
				child, err = dir.Create(head, false, mode)
				if err != 0 {
					return nil, err
				}
				return child, 0
			}
			return nil, err
		}
		if last && flags&O_CREAT != 0 && flags&O_EXCL != 0 {
			return nil, -defs.EEXIST
		}

		if lt, isLink := child.(LinkTarget); isLink {
			if last && flags&O_NOFOLLOW != 0 {
				return child, 0
			}
			target, err := lt.GetLinkTarget()
			if err != 0 {
				return nil, err
			}
			var base Vnode
			if target.IsAbsolute() {
				base = rootOf(cur)
			} else {
				// Relative symlink targets resolve against the directory
				// that contained the symlink, i.e. cur before this lookup.
				base = cur
			}
			full := target
			if !last {
				full = append(append(ustr.Ustr{}, target...), '/')
				full = append(full, rest...)
			}
			// The recursive call resolves everything remaining in `full`
			// (the symlink target plus whatever path followed it), so its
			// result is the final answer for this entire Openat call.
			return openat(base, full, flags, mode, depth+1)
		}

		cur = child
		if last {
			if flags&O_DIRECTORY != 0 && !cur.IsDir() {
				return nil, -defs.ENOTDIR
			}
			return cur, 0
		}
		if !cur.IsDir() {
			return nil, -defs.ENOTDIR
		}
	}
}

// rootOf walks parent links to find the filesystem root from cur.
func rootOf(cur Vnode) Vnode {
	for {
		d, ok := cur.(DirOps)
		if !ok {
			return cur
		}
		p := d.Parent()
		if p == nil || p == cur {
			return cur
		}
		cur = p
	}
}
