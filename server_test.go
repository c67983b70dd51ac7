// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"context"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/polyglot/v2"
	"github.com/loopholelabs/testing/conn/pair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopholelabs/accumulator-go/pkg/packet"
)

// connectedPair starts a Server serving one end of a TCP pair and returns a Client using the other end
func connectedPair(t *testing.T, opts ...Option) (*Server, *Client) {
	t.Helper()

	logger := logging.Test(t, logging.Noop, t.Name())
	opts = append([]Option{WithLogger(logger)}, opts...)

	s := NewServer(opts...)
	c := NewClient(WithLogger(logger))

	serverConn, clientConn, err := pair.New()
	require.NoError(t, err)

	served := make(chan struct{})
	go func() {
		_ = s.ServeConn(serverConn)
		close(served)
	}()

	require.NoError(t, c.FromConn(clientConn))
	t.Cleanup(func() {
		_ = c.Close()
		assert.NoError(t, s.Shutdown())
		<-served
	})
	return s, c
}

func TestServerScenarios(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)
	ctx := context.Background()

	t.Run("hello world", func(t *testing.T) {
		h, err := c.New(ctx)
		require.NoError(t, err)
		for _, fragment := range []string{"Hello, ", "World", "!"} {
			require.NoError(t, h.Append(ctx, fragment))
		}
		value, err := h.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hello, World!", value)
		assert.NoError(t, h.Release(ctx))
	})

	t.Run("empty", func(t *testing.T) {
		h, err := c.New(ctx)
		require.NoError(t, err)
		value, err := h.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, "", value)

		require.NoError(t, h.Append(ctx, ""))
		value, err = h.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, "", value)
	})

	t.Run("build between appends", func(t *testing.T) {
		h, err := c.New(ctx)
		require.NoError(t, err)
		require.NoError(t, h.Append(ctx, "a"))
		first, err := h.Build(ctx)
		require.NoError(t, err)
		require.NoError(t, h.Append(ctx, "b"))
		second, err := h.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", first)
		assert.Equal(t, "ab", second)
	})
}

func TestServerHandlesAreIndependent(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)
	ctx := context.Background()

	first, err := c.New(ctx)
	require.NoError(t, err)
	second, err := c.New(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	require.NoError(t, first.Append(ctx, "first"))
	require.NoError(t, second.Append(ctx, "second"))

	value, err := first.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	value, err = second.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestServerRelease(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)
	ctx := context.Background()

	h, err := c.New(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))

	assert.ErrorIs(t, h.Append(ctx, "gone"), UnknownHandle)
	_, err = h.Build(ctx)
	assert.ErrorIs(t, err, UnknownHandle)
	assert.ErrorIs(t, h.Release(ctx), UnknownHandle)

	// the connection survives request errors
	assert.NoError(t, c.Ping(ctx))
}

func TestServerAllocationFailed(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t, WithMaxBufferSize(8))
	ctx := context.Background()

	h, err := c.New(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Append(ctx, "12345678"))

	assert.ErrorIs(t, h.Append(ctx, "9"), AllocationFailed)

	// the accumulator is discarded once it fails to grow
	_, err = h.Build(ctx)
	assert.ErrorIs(t, err, UnknownHandle)
}

func TestServerTooManyHandles(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t, WithMaxHandles(2))
	ctx := context.Background()

	first, err := c.New(ctx)
	require.NoError(t, err)
	_, err = c.New(ctx)
	require.NoError(t, err)

	_, err = c.New(ctx)
	assert.ErrorIs(t, err, TooManyHandles)

	require.NoError(t, first.Release(ctx))
	_, err = c.New(ctx)
	assert.NoError(t, err)
}

func TestServerInvalidRequest(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)
	ctx := context.Background()

	p := packet.Get()
	p.Metadata.Operation = OperationAppend
	polyglot.Encoder(p.Content).String("missing handle")
	_, err := c.call(ctx, p)
	assert.ErrorIs(t, err, InvalidRequest)

	p = packet.Get()
	encodeHandle(p, OperationBuild, 1)
	_, err = c.call(ctx, p)
	assert.ErrorIs(t, err, InvalidRequest)

	p = packet.Get()
	p.Metadata.Operation = OperationError + 1
	_, err = c.call(ctx, p)
	assert.ErrorIs(t, err, InvalidRequest)
}

func TestServerBuildChunked(t *testing.T) {
	old := DefaultMaxContentLength
	DefaultMaxContentLength = 1024
	t.Cleanup(func() { DefaultMaxContentLength = old })

	_, c := connectedPair(t, WithMaxBufferSize(1536))
	ctx := context.Background()

	h, err := c.New(ctx)
	require.NoError(t, err)

	var expected strings.Builder
	for _, r := range "xyz" {
		fragment := strings.Repeat(string(r), 512)
		expected.WriteString(fragment)
		require.NoError(t, h.Append(ctx, fragment))
	}

	value, err := h.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, expected.String(), value)

	// every size the server accepts can be built, and nothing larger is accepted
	assert.ErrorIs(t, h.Append(ctx, "!"), AllocationFailed)
	assert.NoError(t, c.Ping(ctx))
}

func TestServerBuildDefaultLimits(t *testing.T) {
	t.Parallel()

	require.Greater(t, DefaultMaxBufferSize, int(DefaultMaxContentLength))

	_, c := connectedPair(t)
	ctx := context.Background()

	h, err := c.New(ctx)
	require.NoError(t, err)

	const fragmentSize = 2 << 20
	var expected strings.Builder
	for _, r := range "abc" {
		fragment := strings.Repeat(string(r), fragmentSize)
		expected.WriteString(fragment)
		require.NoError(t, h.Append(ctx, fragment))
	}

	value, err := h.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3*fragmentSize, len(value))
	assert.Equal(t, expected.String(), value)
}

func TestServerBuildEmptyChunks(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)
	ctx := context.Background()

	h, err := c.New(ctx)
	require.NoError(t, err)

	total, chunk, err := h.buildChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, "", chunk)

	require.NoError(t, h.Append(ctx, "abc"))
	total, chunk, err = h.buildChunk(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "bc", chunk)

	total, chunk, err = h.buildChunk(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "", chunk)
}

func TestServerConcurrentClients(t *testing.T) {
	t.Parallel()

	const handles = 8
	const appends = 100

	_, c := connectedPair(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(handles)
	for i := 0; i < handles; i++ {
		go func() {
			defer wg.Done()
			h, err := c.New(ctx)
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < appends; j++ {
				assert.NoError(t, h.Append(ctx, "z"))
			}
			value, err := h.Build(ctx)
			assert.NoError(t, err)
			assert.Equal(t, strings.Repeat("z", appends), value)
		}()
	}
	wg.Wait()
}

func TestServerStartShutdown(t *testing.T) {
	t.Parallel()

	logger := logging.Test(t, logging.Noop, t.Name())
	s := NewServer(WithLogger(logger))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() {
		served <- s.Serve(listener)
	}()

	c := NewClient(WithLogger(logger))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)
	require.NoError(t, c.Connect(ctx, listener.Addr().String()))

	h, err := c.New(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Append(ctx, "over tcp"))
	value, err := h.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "over tcp", value)

	require.NoError(t, s.Shutdown())
	assert.NoError(t, <-served)

	// the server closed the connection, so requests fail
	assert.Error(t, h.Append(ctx, "after shutdown"))
	_ = c.Close()

	_, serverConn := net.Pipe()
	assert.ErrorIs(t, s.ServeConn(serverConn), ServerClosed)
}

func TestClientNotConnected(t *testing.T) {
	t.Parallel()

	c := NewClient()
	assert.ErrorIs(t, c.Ping(context.Background()), ConnectionNotInitialized)
	assert.ErrorIs(t, c.Close(), ConnectionNotInitialized)
}

func TestClientConnectOnce(t *testing.T) {
	t.Parallel()

	_, c := connectedPair(t)

	first, second := net.Pipe()
	t.Cleanup(func() {
		_ = first.Close()
		_ = second.Close()
	})
	assert.ErrorIs(t, c.FromConn(first), ConnectionAlreadyInitialized)
	assert.ErrorIs(t, c.Connect(context.Background(), "127.0.0.1:0"), ConnectionAlreadyInitialized)

	// the original connection is still the one in use
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClientRegisterSkipsInflight(t *testing.T) {
	t.Parallel()

	c := NewClient()
	ch := make(chan *packet.Packet, 1)

	c.inflight[1] = ch
	id, err := c.register(ch)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id)

	c.next = math.MaxUint16
	c.inflight[0] = ch
	id, err = c.register(ch)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), id)

	for i := 0; i <= math.MaxUint16; i++ {
		c.inflight[uint16(i)] = ch
	}
	_, err = c.register(ch)
	assert.ErrorIs(t, err, TooManyRequests)
}

func TestClientContextCanceled(t *testing.T) {
	t.Parallel()

	clientConn, serverConn, err := pair.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverConn.Close() })

	c := NewClient(WithLogger(logging.Test(t, logging.Noop, t.Name())))
	require.NoError(t, c.FromConn(clientConn))
	t.Cleanup(func() { _ = c.Close() })

	// nothing serves the other end, so the request never gets a response
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	t.Cleanup(cancel)
	_, err = c.New(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
