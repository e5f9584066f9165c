// Package endian implements the endianness-annotated integer pattern
// described in DESIGN NOTES §9, grounded on
// original_source's kernel/include/dennix/kernel/endian.h. The block
// cache uses it for its per-block write-generation counter, so that a
// byte-swap is never forgotten when host and declared endianness differ.
package endian

import "encoding/binary"

// Order is satisfied by the two byte orders a wire/on-disk field may
// declare.
type Order interface {
	binary.ByteOrder
}

// BE wraps a value that is always stored in big-endian byte order
// regardless of host order.
type BE[T ~uint16 | ~uint32 | ~uint64] struct{ raw []byte }

// LE wraps a value that is always stored in little-endian byte order.
type LE[T ~uint16 | ~uint32 | ~uint64] struct{ raw []byte }

func width[T ~uint16 | ~uint32 | ~uint64]() int {
	var z T
	switch any(z).(type) {
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

func load[T ~uint16 | ~uint32 | ~uint64](raw []byte, order binary.ByteOrder) T {
	switch width[T]() {
	case 2:
		return T(order.Uint16(raw))
	case 4:
		return T(order.Uint32(raw))
	default:
		return T(order.Uint64(raw))
	}
}

func store[T ~uint16 | ~uint32 | ~uint64](raw []byte, order binary.ByteOrder, v T) {
	switch width[T]() {
	case 2:
		order.PutUint16(raw, uint16(v))
	case 4:
		order.PutUint32(raw, uint32(v))
	default:
		order.PutUint64(raw, uint64(v))
	}
}

// NewBE binds a big-endian field to backing storage raw (which must be
// exactly sizeof(T) bytes).
func NewBE[T ~uint16 | ~uint32 | ~uint64](raw []byte) BE[T] { return BE[T]{raw: raw} }

// Get performs the byte-swap (if any) and returns the host-order value.
func (b BE[T]) Get() T { return load[T](b.raw, binary.BigEndian) }

// Set byte-swaps v (if needed) into the backing storage.
func (b BE[T]) Set(v T) { store[T](b.raw, binary.BigEndian, v) }

// NewLE binds a little-endian field to backing storage raw.
func NewLE[T ~uint16 | ~uint32 | ~uint64](raw []byte) LE[T] { return LE[T]{raw: raw} }

// Get performs the byte-swap (if any) and returns the host-order value.
func (l LE[T]) Get() T { return load[T](l.raw, binary.LittleEndian) }

// Set byte-swaps v (if needed) into the backing storage.
func (l LE[T]) Set(v T) { store[T](l.raw, binary.LittleEndian, v) }
