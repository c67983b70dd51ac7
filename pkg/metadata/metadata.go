// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"encoding/binary"
	"errors"
)

var (
	InvalidBufferLength = errors.New("invalid buffer length")
	InvalidMagicHeader  = errors.New("invalid magic header")
)

// PacketMagicHeader is the first two bytes of every packet on the wire
const PacketMagicHeader = uint16(0x0F0F)

const (
	MagicOffset = 0 // 0
	MagicSize   = 2

	IdOffset = MagicOffset + MagicSize // 2
	IdSize   = 2

	OperationOffset = IdOffset + IdSize // 4
	OperationSize   = 2

	ContentLengthOffset = OperationOffset + OperationSize // 6
	ContentLengthSize   = 4

	Size = ContentLengthOffset + ContentLengthSize // 10
)

// Metadata is the fixed-size header of a packet, 10 bytes on the wire (including the magic header)
type Metadata struct {
	Id            uint16 // 2 Bytes
	Operation     uint16 // 2 Bytes
	ContentLength uint32 // 4 Bytes
}

// Encode writes the metadata, preceded by the magic header, into b
func (m *Metadata) Encode(b *Buffer) {
	binary.BigEndian.PutUint16(b[MagicOffset:MagicOffset+MagicSize], PacketMagicHeader)
	binary.BigEndian.PutUint16(b[IdOffset:IdOffset+IdSize], m.Id)
	binary.BigEndian.PutUint16(b[OperationOffset:OperationOffset+OperationSize], m.Operation)
	binary.BigEndian.PutUint32(b[ContentLengthOffset:ContentLengthOffset+ContentLengthSize], m.ContentLength)
}

// Decode reads the metadata from b, failing if the magic header is missing
func (m *Metadata) Decode(b *Buffer) error {
	if binary.BigEndian.Uint16(b[MagicOffset:MagicOffset+MagicSize]) != PacketMagicHeader {
		return InvalidMagicHeader
	}
	m.Id = binary.BigEndian.Uint16(b[IdOffset : IdOffset+IdSize])
	m.Operation = binary.BigEndian.Uint16(b[OperationOffset : OperationOffset+OperationSize])
	m.ContentLength = binary.BigEndian.Uint32(b[ContentLengthOffset : ContentLengthOffset+ContentLengthSize])
	return nil
}

// Decode without a Buffer
func Decode(buf []byte) (m Metadata, err error) {
	if len(buf) < Size {
		return Metadata{}, InvalidBufferLength
	}
	var b Buffer
	copy(b[:], buf)
	err = m.Decode(&b)
	return
}
