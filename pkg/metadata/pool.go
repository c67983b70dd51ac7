// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"github.com/loopholelabs/common/pkg/pool"
)

// Buffer is scratch space for one encoded Metadata header. Buffers are recycled
// through a pool since one is needed for every packet read or written.
type Buffer [Size]byte

// NewBuffer allocates a zeroed Buffer, it is the constructor used by the pool
func NewBuffer() *Buffer {
	return new(Buffer)
}

// Reset is a no-op, every use of a Buffer overwrites all Size bytes
func (b *Buffer) Reset() {}

var headerPool = pool.NewPool[Buffer, *Buffer](NewBuffer)

// GetBuffer returns a Buffer from the pool, which must be given back with PutBuffer once the
// header it holds has been written out or decoded
func GetBuffer() *Buffer {
	return headerPool.Get()
}

// PutBuffer returns b to the pool, b must not be used afterwards
func PutBuffer(b *Buffer) {
	headerPool.Put(b)
}
