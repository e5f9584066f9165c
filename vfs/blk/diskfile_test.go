package blk

import (
	"os"
	"sync"
	"sync/atomic"

	"dennix/defs"
	"dennix/mem"
)

// fileDisk simulates a disk backed by a file, adapted from
// biscuit/src/ufs/driver.go's ahci_disk_t.
type fileDisk struct {
	mu sync.Mutex
	f  *os.File

	reads, writes atomic.Int64
}

func newFileDisk() *fileDisk {
	f, err := os.CreateTemp("", "dennix-blk-test-*")
	if err != nil {
		panic(err)
	}
	return &fileDisk{f: f}
}

func (d *fileDisk) seek(block int) {
	if _, err := d.f.Seek(int64(block)*BlockSize, 0); err != nil {
		panic(err)
	}
}

func (d *fileDisk) ReadUncached(block int, dst *mem.Page) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads.Add(1)
	d.seek(block)
	n, err := d.f.Read(dst[:])
	if err != nil && n == 0 {
		// an unwritten region of a sparse file reads as EOF; treat as zeros
		clear(dst[:])
		return 0
	}
	return 0
}

func (d *fileDisk) WriteUncached(block int, src *mem.Page) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes.Add(1)
	d.seek(block)
	if _, err := d.f.Write(src[:]); err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *fileDisk) Flush() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Sync(); err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *fileDisk) close() {
	d.f.Close()
	os.Remove(d.f.Name())
}
