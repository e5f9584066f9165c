package vfs

import (
	"dennix/defs"
	"dennix/kmutex"
)

// Seek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// OpenFile is the file description of spec.md §4.7: it mediates seek
// offset and flags for one open instance of a vnode, independent of how
// many file descriptors reference it (dup'd descriptors share one
// OpenFile, a fresh open(2) gets its own).
type OpenFile struct {
	mu     kmutex.Mutex
	Vn     Vnode
	Flags  int
	offset int64
	dirOff int64
	closed bool
}

// NewOpenFile constructs a file description over vn, taking the
// reference the caller already holds (it does not call vn.Ref() itself).
func NewOpenFile(vn Vnode, flags int) *OpenFile {
	return &OpenFile{Vn: vn, Flags: flags}
}

// Reopen takes an additional reference, for fd.Copyfd's dup semantics.
func (f *OpenFile) Reopen() error {
	f.Vn.Ref()
	return nil
}

// Close drops this OpenFile's reference to its vnode. Safe to call more
// than once; only the first call has effect.
func (f *OpenFile) Close() error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	f.mu.Unlock()
	if already {
		return nil
	}
	f.Vn.Unref()
	return nil
}

// Read/Write read or write through the vnode's Reader/Writer
// capability, advancing this description's offset atomically under its
// own mutex for seekable vnodes, spec.md §4.7: "for seekable vnodes the
// description's offset is incremented atomically under the description's
// own mutex; non-seekable vnodes ignore the offset."
func (f *OpenFile) Read(dst []byte) (int, defs.Err_t) {
	if sr, ok := f.Vn.(StreamReader); ok {
		return sr.Read(dst)
	}
	r, ok := f.Vn.(Reader)
	if !ok {
		return 0, -defs.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := r.Pread(dst, f.offset)
	if err != 0 {
		return 0, err
	}
	f.offset += int64(n)
	return n, 0
}

func (f *OpenFile) Write(src []byte) (int, defs.Err_t) {
	if sw, ok := f.Vn.(StreamWriter); ok {
		return sw.Write(src)
	}
	w, ok := f.Vn.(Writer)
	if !ok {
		return 0, -defs.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	off := f.offset
	if f.Flags&O_APPEND != 0 {
		if s, ok := f.Vn.(Seekable); ok {
			off = s.Size()
		}
	}
	n, err := w.Pwrite(src, off)
	if err != 0 {
		return 0, err
	}
	f.offset = off + int64(n)
	return n, 0
}

// Lseek computes the new offset per whence, rejecting negative results
// and values outside the representable range, spec.md §4.7.
func (f *OpenFile) Lseek(off int64, whence int) (int64, defs.Err_t) {
	s, ok := f.Vn.(Seekable)
	if !ok {
		return 0, -defs.ESPIPE
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case SEEK_SET:
		base = 0
	case SEEK_CUR:
		base = f.offset
	case SEEK_END:
		base = s.Size()
	default:
		return 0, -defs.EINVAL
	}
	n := base + off
	// A negative result or a base+off wraparound (overflowing int64) are
	// both reported as EINVAL, spec.md §8's boundary behavior: "lseek
	// overflow returns EINVAL."
	overflowed := (off > 0 && n < base) || (off < 0 && n > base)
	if n < 0 || overflowed {
		return 0, -defs.EINVAL
	}
	f.offset = n
	return n, 0
}

// Readdir projects the next directory entry at this description's
// logical offset, advancing it, spec.md §4.7.
func (f *OpenFile) Readdir() (Dirent, bool, defs.Err_t) {
	d, ok := f.Vn.(DirOps)
	if !ok {
		return Dirent{}, false, -defs.ENOTDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, next, err := d.Readdir(f.dirOff)
	if err != 0 {
		return Dirent{}, false, err
	}
	if next == f.dirOff {
		return Dirent{}, false, 0 // end of directory
	}
	f.dirOff = next
	return ent, true, 0
}

// Open flag bits relevant to the file description (the rest of the
// open(2) flag space is a syscall-ABI concern out of scope per spec.md
// §1).
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREAT  = 0x40
	O_EXCL   = 0x80
	O_NOFOLLOW = 0x100
	O_APPEND = 0x400
	O_DIRECTORY = 0x10000
)
