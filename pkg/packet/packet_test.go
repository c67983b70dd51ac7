// SPDX-License-Identifier: Apache-2.0

package packet

import (
	"crypto/rand"
	"testing"

	"github.com/loopholelabs/polyglot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	p := Get()

	assert.IsType(t, new(Packet), p)
	assert.NotNil(t, p.Metadata)
	assert.Equal(t, uint16(0), p.Metadata.Id)
	assert.Equal(t, uint16(0), p.Metadata.Operation)
	assert.Equal(t, uint32(0), p.Metadata.ContentLength)
	assert.Equal(t, 0, p.Content.Len())

	Put(p)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	p := Get()

	b := make([]byte, 32)
	_, err := rand.Read(b)
	assert.NoError(t, err)

	p.Content.Write(b)
	p.Seal()
	assert.Equal(t, b, p.Content.Bytes())
	assert.Equal(t, uint32(32), p.Metadata.ContentLength)

	p.Reset()
	assert.Equal(t, 0, p.Content.Len())
	assert.Equal(t, uint32(0), p.Metadata.ContentLength)

	b = make([]byte, 1024)
	_, err = rand.Read(b)
	assert.NoError(t, err)

	p.Content.Write(b)

	assert.Equal(t, b, p.Content.Bytes())
	assert.Equal(t, 1024, p.Content.Len())
	assert.GreaterOrEqual(t, p.Content.Cap(), 1024)

	Put(p)
}

func TestEncodedContent(t *testing.T) {
	t.Parallel()

	p := Get()
	t.Cleanup(func() { Put(p) })

	polyglot.Encoder(p.Content).Uint32(7).String("Hello, World!")
	p.Seal()

	d := polyglot.Decoder(p.Content.Bytes())
	handle, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), handle)

	fragment, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", fragment)
}
