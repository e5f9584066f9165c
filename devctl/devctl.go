// Package devctl implements the device-control command encoding from
// spec.md §6, grounded on original_source's
// kernel/include/dennix/devctl.h and devctls.h.
package devctl

import "dennix/defs"

// Shape tags occupy the three high bits of a 32-bit command word; the
// remainder is a command number scoped to that shape.
type Shape uint32

const (
	ShapeVoid Shape = iota
	ShapeInt
	ShapeLong
	ShapePointer

	shapeShift = 29
	shapeMask  = 0x7
	cmdMask    = (1 << shapeShift) - 1
)

// Cmd packs a shape tag and a command number into a single 32-bit word.
func Cmd(shape Shape, number uint32) uint32 {
	if number > cmdMask {
		panic("devctl: command number out of range")
	}
	return uint32(shape&shapeMask)<<shapeShift | number
}

// Decode splits a command word back into its shape tag and number.
func Decode(word uint32) (Shape, uint32) {
	return Shape(word >> shapeShift & shapeMask), word & cmdMask
}

// ArgSize returns the number of bytes a command's shape tag implies the
// payload occupies, so the kernel can validate a user-supplied size
// before copying it to/from user space (spec.md §6).
func (s Shape) ArgSize() int {
	switch s {
	case ShapeVoid:
		return 0
	case ShapeInt:
		return 4
	case ShapeLong, ShapePointer:
		return 8
	default:
		return -1
	}
}

// Well-known commands, following original_source's devctls.h numbering
// scheme (shape tag, then a small sequential number within that shape).
var (
	TIOCGWINSZ = Cmd(ShapePointer, 1) // get terminal window size
	TIOCSWINSZ = Cmd(ShapePointer, 2) // set terminal window size
	TIOCGPGRP  = Cmd(ShapeInt, 1)     // get terminal foreground pgrp
	TIOCSPGRP  = Cmd(ShapeInt, 2)     // set terminal foreground pgrp
	FIOCLEX    = Cmd(ShapeVoid, 1)    // set close-on-exec
	FIONCLEX   = Cmd(ShapeVoid, 2)    // clear close-on-exec
)

// Validate checks that size matches the shape tag's required payload
// size, returning EINVAL on mismatch the way the kernel's devctl
// dispatcher does before it ever looks at the vnode.
func Validate(word uint32, size int) defs.Err_t {
	shape, _ := Decode(word)
	want := shape.ArgSize()
	if want < 0 || size != want {
		return -defs.EINVAL
	}
	return 0
}
