// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"math"

	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/accumulator-go/pkg/packet"
)

// These are the packet operations understood by the accumulator service. Values 0-9 are reserved.
const (
	// OperationPing checks that the Server is alive and responding
	OperationPing = uint16(iota + 10)

	// OperationNew constructs an empty accumulator and responds with its handle
	OperationNew

	// OperationAppend appends a fragment to the accumulator behind a handle
	OperationAppend

	// OperationBuild responds with the total accumulated length behind a handle and one chunk of the text,
	// starting at the requested offset
	OperationBuild

	// OperationRelease discards the accumulator behind a handle
	OperationRelease

	// OperationError is the response operation used whenever a request fails
	OperationError
)

// buildOverhead is room left in a Build response for the encoded total length and chunk length
const buildOverhead = 16

// maxWireLength is the largest accumulated length that Build offsets can address
const maxWireLength = min(math.MaxUint32, math.MaxInt)

// buildChunkSize returns the most text a single Build response may carry, 0 when packet content is unbounded
func buildChunkSize() int {
	if DefaultMaxContentLength == 0 {
		return 0
	}
	if DefaultMaxContentLength <= buildOverhead {
		return 1
	}
	return int(DefaultMaxContentLength - buildOverhead)
}

// wireBufferSize bounds a configured MaxBufferSize by what Build offsets can address
func wireBufferSize(size int) int {
	if size <= 0 || size > maxWireLength {
		return maxWireLength
	}
	return size
}

// encodeHandle writes a request for operation against handle into p
func encodeHandle(p *packet.Packet, operation uint16, handle uint32) {
	p.Metadata.Operation = operation
	polyglot.Encoder(p.Content).Uint32(handle)
}

// encodeError turns p into an OperationError response carrying err
func encodeError(p *packet.Packet, err error) {
	p.Metadata.Operation = OperationError
	p.Content.Reset()
	polyglot.Encoder(p.Content).Error(err)
	p.Seal()
}

// decodeError extracts the error carried by an OperationError packet
func decodeError(p *packet.Packet) error {
	d := polyglot.Decoder(p.Content.Bytes())
	value, err := d.Error()
	if err != nil {
		return InvalidResponse
	}
	return remoteError(value)
}
