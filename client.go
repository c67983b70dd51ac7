// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/accumulator-go/pkg/packet"
)

// Client is a connection to an accumulator Server. It is safe to use concurrently, and
// matches every response to its request using the packet Id.
type Client struct {
	options *Options
	logger  types.Logger
	conn    *Conn

	inflightMu sync.Mutex
	next       uint16
	inflight   map[uint16]chan *packet.Packet

	closed chan struct{}
	wg     sync.WaitGroup
}

// NewClient returns an initialized Client, which must then be connected using Connect or FromConn
func NewClient(opts ...Option) *Client {
	options := loadOptions(opts...)
	return &Client{
		options:  options,
		logger:   options.Logger,
		inflight: make(map[uint16]chan *packet.Packet),
		closed:   make(chan struct{}),
	}
}

// Connect dials the Server at addr. A Client can only be connected once.
func (c *Client) Connect(ctx context.Context, addr string) error {
	if c.conn != nil {
		return ConnectionAlreadyInitialized
	}
	c.logger.Debug().Str("addr", addr).Msg("connecting")
	conn, err := ConnectConn(ctx, addr, c.options.KeepAlive, c.logger, c.options.TLSConfig)
	if err != nil {
		return err
	}
	if err = c.start(conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.logger.Info().Str("addr", addr).Msg("connected")
	return nil
}

// FromConn uses an existing net.Conn to talk to the Server
func (c *Client) FromConn(conn net.Conn) error {
	return c.start(NewConn(conn, c.logger))
}

func (c *Client) start(conn *Conn) error {
	if c.conn != nil {
		return ConnectionAlreadyInitialized
	}
	c.conn = conn
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Ping checks that the Server is responding
func (c *Client) Ping(ctx context.Context) error {
	p := packet.Get()
	p.Metadata.Operation = OperationPing
	res, err := c.call(ctx, p)
	if err != nil {
		return err
	}
	packet.Put(res)
	return nil
}

// New constructs an empty accumulator on the Server and returns its Handle
func (c *Client) New(ctx context.Context) (*Handle, error) {
	p := packet.Get()
	p.Metadata.Operation = OperationNew
	res, err := c.call(ctx, p)
	if err != nil {
		return nil, err
	}
	defer packet.Put(res)

	id, err := polyglot.Decoder(res.Content.Bytes()).Uint32()
	if err != nil {
		return nil, InvalidResponse
	}
	return &Handle{client: c, id: id}, nil
}

// Close closes the connection to the Server and fails any requests still waiting for a response
func (c *Client) Close() error {
	if c.conn == nil {
		return ConnectionNotInitialized
	}
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// Error returns the error that caused the underlying connection to close
func (c *Client) Error() error {
	if c.conn == nil {
		return ConnectionNotInitialized
	}
	return c.conn.Error()
}

// call writes p, waits for the matching response and returns it. p is always released.
// Error responses are converted into the matching error value.
func (c *Client) call(ctx context.Context, p *packet.Packet) (*packet.Packet, error) {
	defer packet.Put(p)
	if c.conn == nil {
		return nil, ConnectionNotInitialized
	}

	ch := make(chan *packet.Packet, 1)
	id, err := c.register(ch)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.inflightMu.Lock()
		delete(c.inflight, id)
		c.inflightMu.Unlock()
	}()
	p.Metadata.Id = id
	p.Seal()

	if err := c.conn.WritePacket(p); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Metadata.Operation == OperationError {
			err := decodeError(res)
			packet.Put(res)
			return nil, err
		}
		return res, nil
	case <-c.closed:
		return nil, ConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// register assigns the next packet Id that is not already waiting for a response to ch
func (c *Client) register(ch chan *packet.Packet) (uint16, error) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if len(c.inflight) > math.MaxUint16 {
		return 0, TooManyRequests
	}
	for {
		c.next++
		if _, ok := c.inflight[c.next]; !ok {
			c.inflight[c.next] = ch
			return c.next, nil
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.closed)
	for {
		p, err := c.conn.ReadPacket()
		if err != nil {
			if !errors.Is(err, ConnectionClosed) {
				c.logger.Error().Err(err).Msg("closing connection to server")
			}
			return
		}
		c.inflightMu.Lock()
		ch, ok := c.inflight[p.Metadata.Id]
		c.inflightMu.Unlock()
		if !ok {
			c.logger.Debug().Uint16("Packet ID", p.Metadata.Id).Msg("dropping response to abandoned request")
			packet.Put(p)
			continue
		}
		ch <- p
	}
}

// Handle is an opaque reference to an accumulator owned by the Server. A Handle is only valid
// while the Client that created it stays connected.
type Handle struct {
	client *Client
	id     uint32
}

// ID returns the identifier the Server assigned to the accumulator
func (h *Handle) ID() uint32 {
	return h.id
}

// Append adds fragment to the end of the remote accumulator.
//
// If the Server refuses to grow the accumulator, AllocationFailed is returned and the Handle
// is no longer valid.
func (h *Handle) Append(ctx context.Context, fragment string) error {
	p := packet.Get()
	encodeHandle(p, OperationAppend, h.id)
	polyglot.Encoder(p.Content).String(fragment)
	res, err := h.client.call(ctx, p)
	if err != nil {
		return err
	}
	packet.Put(res)
	return nil
}

// Build returns the text accumulated by the remote accumulator. Large results are fetched in as many
// chunks as the maximum packet content length requires.
func (h *Handle) Build(ctx context.Context) (string, error) {
	var acc Accumulator
	want := -1
	for want < 0 || acc.Len() < want {
		total, chunk, err := h.buildChunk(ctx, acc.Len())
		if err != nil {
			return "", err
		}
		if want < 0 {
			want = total
			acc.Grow(want)
		}
		// text appended after the first chunk belongs to a later Build
		if remaining := want - acc.Len(); len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		if len(chunk) == 0 && acc.Len() < want {
			return "", InvalidResponse
		}
		acc.Append(chunk)
	}
	return acc.Build(), nil
}

func (h *Handle) buildChunk(ctx context.Context, offset int) (int, string, error) {
	p := packet.Get()
	encodeHandle(p, OperationBuild, h.id)
	polyglot.Encoder(p.Content).Uint32(uint32(offset))
	res, err := h.client.call(ctx, p)
	if err != nil {
		return 0, "", err
	}
	defer packet.Put(res)

	d := polyglot.Decoder(res.Content.Bytes())
	total, err := d.Uint32()
	if err != nil {
		return 0, "", InvalidResponse
	}
	chunk, err := d.String()
	if err != nil {
		return 0, "", InvalidResponse
	}
	return int(total), chunk, nil
}

// Release discards the remote accumulator. The Handle must not be used afterwards.
func (h *Handle) Release(ctx context.Context) error {
	p := packet.Get()
	encodeHandle(p, OperationRelease, h.id)
	res, err := h.client.call(ctx, p)
	if err != nil {
		return err
	}
	packet.Put(res)
	return nil
}
