// Package regfile implements the in-memory regular-file vnode of
// spec.md §4.8: "flat byte vector; ftruncate grows (zero-filling) or
// shrinks under a per-file mutex; pread/pwrite clip or extend as
// appropriate." Grounded on the teacher's small-capability-interface
// style (biscuit/src/fs/blk.go) composed against vfs.Vnode/Reader/
// Writer/Truncater/Seekable.
package regfile

import (
	"sync"

	"dennix/defs"
	"dennix/refcount"
	"dennix/stat"
)

// File is an in-memory regular file.
type File struct {
	refcount.Counted
	mu   sync.Mutex
	data []byte
	mode uint32
}

// New constructs an empty regular file with the given permission mode.
func New(mode uint32) *File {
	f := &File{mode: mode}
	f.Init()
	return f
}

func (f *File) IsDir() bool { return false }

func (f *File) Stat() (stat.Stat_t, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return stat.Stat_t{Mode: stat.IFREG | f.mode, Size: uint64(len(f.data))}, 0
}

func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

// Pread copies min(size, len-off) bytes starting at off into dst,
// returning 0 bytes (not an error) when off is at or past the end.
func (f *File) Pread(dst []byte, off int64) (int, defs.Err_t) {
	if off < 0 {
		return 0, -defs.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, 0
	}
	n := copy(dst, f.data[off:])
	return n, 0
}

// Pwrite extends the file if the write runs past the current end,
// zero-filling any gap, spec.md §4.8.
func (f *File) Pwrite(src []byte, off int64) (int, defs.Err_t) {
	if off < 0 {
		return 0, -defs.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(src))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], src)
	return len(src), 0
}

// Ftruncate grows (zero-filling) or shrinks the file to size.
func (f *File) Ftruncate(size int64) defs.Err_t {
	if size < 0 {
		return -defs.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case size == int64(len(f.data)):
	case size < int64(len(f.data)):
		f.data = f.data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	return 0
}
