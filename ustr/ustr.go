// Package ustr implements the immutable path/string byte-vector type used
// throughout the VFS layer, adapted from biscuit's ustr package.
package ustr

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"dennix/defs"
)

// Ustr is an immutable path component or full path, stored as raw bytes
// the way the kernel receives it from user space.
type Ustr []byte

// MkUstr returns an empty Ustr.
func MkUstr() Ustr { return Ustr{} }

// MkUstrDot returns a Ustr representing ".".
func MkUstrDot() Ustr { return Ustr(".") }

// MkUstrRoot returns a Ustr representing the root directory "/".
func MkUstrRoot() Ustr { return Ustr("/") }

// DotDot is a reusable Ustr containing "..".
var DotDot = Ustr("..")

// Isdot reports whether us is exactly ".".
func (us Ustr) Isdot() bool { return len(us) == 1 && us[0] == '.' }

// Isdotdot reports whether us is exactly "..".
func (us Ustr) Isdotdot() bool { return len(us) == 2 && us[0] == '.' && us[1] == '.' }

// IsAbsolute reports whether us begins with a slash.
func (us Ustr) IsAbsolute() bool { return len(us) > 0 && us[0] == '/' }

// Eq compares two Ustr values byte for byte.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

func (us Ustr) String() string { return string(us) }

// MkUstrFromBytes validates buf as well-formed UTF-8, normalizing it to
// NFC the way a real ustr layer hand-scanning UTF-8 never did, and
// returns an error instead of admitting malformed path bytes. Embedded
// NUL bytes are rejected (the kernel's string type is not NUL
// terminated, but a NUL mid-path can never be a legal path component).
func MkUstrFromBytes(buf []byte) (Ustr, defs.Err_t) {
	for _, b := range buf {
		if b == 0 {
			return nil, -defs.EINVAL
		}
	}
	if !utf8.Valid(buf) {
		return nil, -defs.EINVAL
	}
	if !norm.NFC.IsNormal(buf) {
		buf = norm.NFC.Bytes(buf)
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return Ustr(cp), 0
}

// Split removes one leading "/"-delimited component from us and returns
// it along with the remainder (with any further leading slashes
// stripped). ok is false if us is empty.
func (us Ustr) Split() (head Ustr, rest Ustr, ok bool) {
	i := 0
	for i < len(us) && us[i] == '/' {
		i++
	}
	us = us[i:]
	if len(us) == 0 {
		return nil, nil, false
	}
	j := 0
	for j < len(us) && us[j] != '/' {
		j++
	}
	head = us[:j]
	rest = us[j:]
	k := 0
	for k < len(rest) && rest[k] == '/' {
		k++
	}
	return head, rest[k:], true
}
