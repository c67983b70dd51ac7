// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopholelabs/logging/loggers/noop"
	"github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/accumulator-go/internal/dialer"
	"github.com/loopholelabs/accumulator-go/pkg/metadata"
	"github.com/loopholelabs/accumulator-go/pkg/packet"
)

var (
	// DefaultMaxContentLength is the largest packet content a Conn will read or write, 0 disables the check
	DefaultMaxContentLength = uint32(5 * 1024 * 1024) // 5 MB

	emptyState = tls.ConnectionState{}
)

// Conn is a framed packet connection used by both the Client and the Server.
// Writes are serialized, reads must only happen from a single goroutine.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	closed atomic.Bool
	logger types.Logger
	error  atomic.Value
}

// ConnectConn dials addr (retrying on failure) and wraps the resulting connection in a Conn
func ConnectConn(ctx context.Context, addr string, keepAlive time.Duration, logger types.Logger, tlsConfig *tls.Config) (*Conn, error) {
	d := dialer.NewRetry()
	d.KeepAlive = keepAlive

	var c net.Conn
	var err error
	if tlsConfig != nil {
		c, err = d.DialTLSContext(ctx, "tcp", addr, tlsConfig)
	} else {
		c, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	return NewConn(c, logger), nil
}

// NewConn takes an existing net.Conn object and wraps it in a Conn
func NewConn(c net.Conn, logger types.Logger) *Conn {
	conn := &Conn{
		conn:   c,
		logger: logger,
	}
	if logger == nil {
		conn.logger = noop.New(types.InfoLevel)
	}
	return conn
}

// SetDeadline sets the read and write deadline on the underlying net.Conn
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the underlying net.Conn
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying net.Conn
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// ConnectionState returns the tls.ConnectionState of a *tls.Conn
// if the connection is not *tls.Conn then the NotTLSConnectionError is returned
func (c *Conn) ConnectionState() (tls.ConnectionState, error) {
	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState(), nil
	}
	return emptyState, NotTLSConnectionError
}

// Handshake performs the tls.HandshakeContext() of a *tls.Conn
// if the connection is not *tls.Conn then the NotTLSConnectionError is returned
func (c *Conn) Handshake(ctx context.Context) error {
	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		return tlsConn.HandshakeContext(ctx)
	}
	return NotTLSConnectionError
}

// LocalAddr returns the local address of the underlying net.Conn
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the underlying net.Conn
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// WritePacket takes a packet.Packet and sends it synchronously.
//
// It is required that packet.Metadata.ContentLength == packet.Content.Len().
func (c *Conn) WritePacket(p *packet.Packet) error {
	if int(p.Metadata.ContentLength) != p.Content.Len() {
		return InvalidContentLength
	}
	if DefaultMaxContentLength > 0 && p.Metadata.ContentLength > DefaultMaxContentLength {
		return ContentLengthExceeded
	}

	encodedMetadata := metadata.GetBuffer()
	defer metadata.PutBuffer(encodedMetadata)
	p.Metadata.Encode(encodedMetadata)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ConnectionClosed
	}

	_, err := c.conn.Write(encodedMetadata[:])
	if err == nil && p.Metadata.ContentLength != 0 {
		_, err = c.conn.Write(p.Content.Bytes())
	}
	if err != nil {
		if c.closed.Load() {
			c.logger.Debug().Err(ConnectionClosed).Uint16("Packet ID", p.Metadata.Id).Msg("error while writing packet")
			return ConnectionClosed
		}
		c.logger.Debug().Err(err).Uint16("Packet ID", p.Metadata.Id).Msg("error while writing packet")
		return c.closeWithError(err)
	}
	return nil
}

// ReadPacket is a blocking function that will wait until a packet is available and then return it.
// In the event that the connection is closed, ReadPacket will return an error.
//
// The returned packet should be released with packet.Put once it is no longer needed.
func (c *Conn) ReadPacket() (*packet.Packet, error) {
	if c.closed.Load() {
		return nil, ConnectionClosed
	}

	encodedMetadata := metadata.GetBuffer()
	defer metadata.PutBuffer(encodedMetadata)

	_, err := io.ReadFull(c.conn, encodedMetadata[:])
	if err != nil {
		return nil, c.readError(err)
	}

	p := packet.Get()
	if err = p.Metadata.Decode(encodedMetadata); err != nil {
		packet.Put(p)
		c.logger.Debug().Err(err).Msg("received packet with an invalid magic header")
		return nil, c.closeWithError(InvalidMagicHeader)
	}

	if DefaultMaxContentLength > 0 && p.Metadata.ContentLength > DefaultMaxContentLength {
		c.logger.Debug().Uint16("Packet ID", p.Metadata.Id).Msgf("content length %d exceeds maximum of %d", p.Metadata.ContentLength, DefaultMaxContentLength)
		packet.Put(p)
		return nil, c.closeWithError(ContentLengthExceeded)
	}

	if p.Metadata.ContentLength > 0 {
		contentLength := int(p.Metadata.ContentLength)
		p.Content.Grow(contentLength)
		p.Content.MoveOffset(contentLength)
		_, err = io.ReadFull(c.conn, p.Content.Bytes())
		if err != nil {
			packet.Put(p)
			return nil, c.readError(err)
		}
	}

	return p, nil
}

// Logger returns the underlying logger of the connection
func (c *Conn) Logger() types.Logger {
	return c.logger
}

// Error returns the error that caused the Conn to close
func (c *Conn) Error() error {
	err := c.error.Load()
	if err == nil {
		return nil
	}
	return err.(error)
}

// Closed returns whether the connection has been closed
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close closes the connection gracefully
func (c *Conn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.conn.Close()
	}
	return nil
}

func (c *Conn) readError(err error) error {
	if c.closed.Load() {
		c.logger.Debug().Err(ConnectionClosed).Msg("error while reading from underlying net.Conn")
		return ConnectionClosed
	}
	c.logger.Debug().Err(err).Msg("error while reading from underlying net.Conn")
	return c.closeWithError(err)
}

func (c *Conn) closeWithError(err error) error {
	if !c.closed.CompareAndSwap(false, true) {
		c.logger.Debug().Err(err).Msg("attempted to close connection with error, but connection already closed")
		return ConnectionClosed
	}
	c.logger.Debug().Err(err).Msg("closing connection with error")
	c.error.Store(err)
	_ = c.conn.Close()
	if errors.Is(err, io.EOF) {
		return ConnectionClosed
	}
	return err
}
