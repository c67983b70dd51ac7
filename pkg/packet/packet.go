// SPDX-License-Identifier: Apache-2.0

package packet

import (
	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/accumulator-go/pkg/metadata"
)

// Packet is the structured data packet exchanged with the accumulator service, and contains the following:
//
//	type Packet struct {
//		Metadata struct {
//			Id            uint16 // 2 Bytes
//			Operation     uint16 // 2 Bytes
//			ContentLength uint32 // 4 Bytes
//		}
//		Content *polyglot.Buffer
//	}
//
// The Id field pairs a response with its request, ContentLength must match the length of Content,
// and the Operation field must be greater than uint16(9).
type Packet struct {
	Metadata *metadata.Metadata
	Content  *polyglot.Buffer
}

func New() *Packet {
	return &Packet{
		Metadata: new(metadata.Metadata),
		Content:  polyglot.NewBuffer(),
	}
}

func (p *Packet) Reset() {
	p.Metadata.Id = 0
	p.Metadata.Operation = 0
	p.Metadata.ContentLength = 0
	p.Content.Reset()
}

// Seal sets the ContentLength to match the current length of the Content
func (p *Packet) Seal() {
	p.Metadata.ContentLength = uint32(p.Content.Len())
}
