// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"sync"
)

// Synchronized is an Accumulator guarded by a mutex that is held for the duration of every operation,
// making it safe to share between goroutines
type Synchronized struct {
	mu  sync.Mutex
	acc Accumulator
}

// NewSynchronized returns an empty Synchronized accumulator
func NewSynchronized() *Synchronized {
	return new(Synchronized)
}

// Append adds fragment to the end of the accumulated text
func (s *Synchronized) Append(fragment string) {
	s.mu.Lock()
	s.acc.Append(fragment)
	s.mu.Unlock()
}

// Build returns the accumulated text
func (s *Synchronized) Build() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Build()
}

// BuildBytes returns a caller-owned copy of the accumulated text
func (s *Synchronized) BuildBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.BuildBytes()
}

// Len returns the number of accumulated bytes
func (s *Synchronized) Len() (n int) {
	s.mu.Lock()
	n = s.acc.Len()
	s.mu.Unlock()
	return
}

// AppendLimit appends fragment only if the result would hold at most limit bytes, reporting whether it did.
// A limit of 0 or less disables the check.
func (s *Synchronized) AppendLimit(fragment string, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && s.acc.Len()+len(fragment) > limit {
		return false
	}
	s.acc.Append(fragment)
	return true
}

// BuildRange returns at most n accumulated bytes starting at offset, along with the total accumulated length.
// An n of 0 or less returns everything from offset onwards.
func (s *Synchronized) BuildRange(offset, n int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.acc.Len()
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if n > 0 && n < end-offset {
		end = offset + n
	}
	return string(s.acc.buf[offset:end]), total
}
