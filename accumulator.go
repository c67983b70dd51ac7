// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"unicode/utf8"
)

// MinimumCapacity is the smallest backing buffer allocated once an Accumulator first needs storage
const MinimumCapacity = 128

// Accumulator collects fragments of text and builds their concatenation on demand.
//
// The backing buffer is a single contiguous byte slice that grows geometrically, so N appends
// with a combined length of L cost O(L) in aggregate. The zero value is an empty Accumulator ready for use.
//
// An Accumulator is owned by a single caller and must not be used concurrently; wrap it in a
// Synchronized when it has to be shared between goroutines.
type Accumulator struct {
	buf []byte
}

// New returns an empty Accumulator. No storage is allocated until the first non-empty Append.
func New() *Accumulator {
	return new(Accumulator)
}

// Append adds fragment to the end of the accumulated text
func (a *Accumulator) Append(fragment string) {
	if len(fragment) == 0 {
		return
	}
	a.reserve(len(fragment))
	a.buf = a.buf[:len(a.buf)+copy(a.buf[len(a.buf):cap(a.buf)], fragment)]
}

// AppendRune adds the UTF-8 encoding of r to the end of the accumulated text
func (a *Accumulator) AppendRune(r rune) {
	a.reserve(utf8.UTFMax)
	a.buf = utf8.AppendRune(a.buf, r)
}

// Write appends the contents of b and always returns len(b), nil.
func (a *Accumulator) Write(b []byte) (int, error) {
	if len(b) > 0 {
		a.reserve(len(b))
		a.buf = a.buf[:len(a.buf)+copy(a.buf[len(a.buf):cap(a.buf)], b)]
	}
	return len(b), nil
}

// WriteString appends s and always returns len(s), nil.
func (a *Accumulator) WriteString(s string) (int, error) {
	a.Append(s)
	return len(s), nil
}

// Build returns the accumulated text. The result never changes when the Accumulator is appended to later.
func (a *Accumulator) Build() string {
	return string(a.buf)
}

// BuildBytes returns a freshly allocated copy of the accumulated text that the caller is free to modify
func (a *Accumulator) BuildBytes() []byte {
	b := make([]byte, len(a.buf))
	copy(b, a.buf)
	return b
}

// String implements fmt.Stringer and is equivalent to Build
func (a *Accumulator) String() string {
	return a.Build()
}

// Len returns the number of accumulated bytes
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Cap returns the capacity of the backing buffer
func (a *Accumulator) Cap() int {
	return cap(a.buf)
}

// Grow guarantees space for another n bytes without a further reallocation
func (a *Accumulator) Grow(n int) {
	if n < 0 {
		panic("accumulator: negative Grow count")
	}
	a.reserve(n)
}

// reserve makes room for n more bytes, at least doubling the capacity whenever it has to reallocate
func (a *Accumulator) reserve(n int) {
	required := len(a.buf) + n
	if required <= cap(a.buf) {
		return
	}
	newCap := 2 * cap(a.buf)
	if newCap < required {
		newCap = required
	}
	if newCap < MinimumCapacity {
		newCap = MinimumCapacity
	}
	buf := make([]byte, len(a.buf), newCap)
	copy(buf, a.buf)
	a.buf = buf
}
