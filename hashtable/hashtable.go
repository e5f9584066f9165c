// Package hashtable implements a small chained hash table, adapted from
// biscuit's hashtable package and rewritten with generics in place of
// interface{} keys/values. The block cache (vfs/blk) uses it to key
// cached blocks by block number.
//
// The teacher's original used lock-free atomic-pointer chains for Get,
// with its own comment admitting that path exists "for performance
// comparisons" against the plain RWMutex path, not because callers need
// wait-free lookup. This module's block cache never needs that, so a
// per-bucket sync.RWMutex replaces the atomic-pointer chain outright.
package hashtable

import "sync"

type elem[K comparable, V any] struct {
	key  K
	val  V
	next *elem[K, V]
}

type bucket[K comparable, V any] struct {
	sync.RWMutex
	first *elem[K, V]
}

// Hashtable is a fixed-bucket-count chained hash table.
type Hashtable[K comparable, V any] struct {
	table []*bucket[K, V]
	hash  func(K) uint32
}

// New allocates a hash table with size buckets, hashing keys with hash.
func New[K comparable, V any](size int, hash func(K) uint32) *Hashtable[K, V] {
	if size <= 0 {
		panic("hashtable: size must be positive")
	}
	ht := &Hashtable[K, V]{
		table: make([]*bucket[K, V], size),
		hash:  hash,
	}
	for i := range ht.table {
		ht.table[i] = &bucket[K, V]{}
	}
	return ht
}

func (ht *Hashtable[K, V]) bucketFor(key K) *bucket[K, V] {
	return ht.table[ht.hash(key)%uint32(len(ht.table))]
}

// Get looks up key and reports whether it was present.
func (ht *Hashtable[K, V]) Get(key K) (V, bool) {
	b := ht.bucketFor(key)
	b.RLock()
	defer b.RUnlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Set inserts key/val, replacing any previous value for key. It reports
// whether the key was newly inserted (false means an existing entry was
// overwritten).
func (ht *Hashtable[K, V]) Set(key K, val V) bool {
	b := ht.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			e.val = val
			return false
		}
	}
	b.first = &elem[K, V]{key: key, val: val, next: b.first}
	return true
}

// Del removes key, if present.
func (ht *Hashtable[K, V]) Del(key K) {
	b := ht.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	var prev *elem[K, V]
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				b.first = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}

// Len returns the total number of stored elements. It is O(buckets).
func (ht *Hashtable[K, V]) Len() int {
	n := 0
	for _, b := range ht.table {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			n++
		}
		b.RUnlock()
	}
	return n
}

// FNV32 hashes a byte slice with 32-bit FNV-1a, the hash biscuit's
// hashtable used for its ustr/string keys.
func FNV32(b []byte) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime32
	}
	return h
}
