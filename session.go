// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"errors"
	"sync"

	"github.com/loopholelabs/common/pkg/queue"
	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/polyglot/v2"

	"github.com/loopholelabs/accumulator-go/pkg/packet"
)

// session is the server side of a single connection. It owns every accumulator constructed over
// that connection, and releases them all once the connection ends.
type session struct {
	conn          *Conn
	logger        types.Logger
	incoming      *queue.Circular[packet.Packet, *packet.Packet]
	handles       map[uint32]*Synchronized
	next          uint32
	maxBufferSize int
	maxHandles    int
}

func newSession(conn *Conn, options *Options) *session {
	return &session{
		conn:          conn,
		logger:        conn.Logger(),
		incoming:      queue.NewCircular[packet.Packet, *packet.Packet](options.QueueSize),
		handles:       make(map[uint32]*Synchronized),
		maxBufferSize: wireBufferSize(options.MaxBufferSize),
		maxHandles:    options.MaxHandles,
	}
}

// serve blocks until the connection fails or is closed, and returns the error that ended it
func (s *session) serve() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.handleLoop()
	}()

	err := s.readLoop()
	s.incoming.Close()
	wg.Wait()

	for _, p := range s.incoming.Drain() {
		packet.Put(p)
	}
	s.logger.Debug().Int("handles", len(s.handles)).Msg("releasing handles for closed connection")
	clear(s.handles)
	return err
}

func (s *session) readLoop() error {
	for {
		p, err := s.conn.ReadPacket()
		if err != nil {
			return err
		}
		if err = s.incoming.Push(p); err != nil {
			packet.Put(p)
			return ConnectionClosed
		}
	}
}

func (s *session) handleLoop() {
	for {
		p, err := s.incoming.Pop()
		if err != nil {
			return
		}
		s.handlePacket(p)
		err = s.conn.WritePacket(p)
		if errors.Is(err, ContentLengthExceeded) {
			encodeError(p, ContentLengthExceeded)
			err = s.conn.WritePacket(p)
		}
		packet.Put(p)
		if err != nil {
			s.logger.Debug().Err(err).Msg("unable to write response, closing connection")
			s.incoming.Close()
			_ = s.conn.Close()
			return
		}
	}
}

// handlePacket executes the request held in p and overwrites p with the response
func (s *session) handlePacket(p *packet.Packet) {
	var err error
	switch p.Metadata.Operation {
	case OperationPing:
		p.Content.Reset()
	case OperationNew:
		err = s.construct(p)
	case OperationAppend:
		err = s.append(p)
	case OperationBuild:
		err = s.build(p)
	case OperationRelease:
		err = s.release(p)
	default:
		err = InvalidRequest
	}
	if err != nil {
		s.logger.Debug().Err(err).Uint16("Packet ID", p.Metadata.Id).Uint16("Operation", p.Metadata.Operation).Msg("request failed")
		encodeError(p, err)
		return
	}
	p.Seal()
}

func (s *session) construct(p *packet.Packet) error {
	if s.maxHandles > 0 && len(s.handles) >= s.maxHandles {
		return TooManyHandles
	}
	s.next++
	for s.handles[s.next] != nil || s.next == 0 {
		s.next++
	}
	s.handles[s.next] = NewSynchronized()

	p.Content.Reset()
	polyglot.Encoder(p.Content).Uint32(s.next)
	return nil
}

func (s *session) append(p *packet.Packet) error {
	d := polyglot.Decoder(p.Content.Bytes())
	handle, err := d.Uint32()
	if err != nil {
		return InvalidRequest
	}
	fragment, err := d.String()
	if err != nil {
		return InvalidRequest
	}
	acc, ok := s.handles[handle]
	if !ok {
		return UnknownHandle
	}
	if !acc.AppendLimit(fragment, s.maxBufferSize) {
		// a buffer that could not grow is discarded rather than reused
		delete(s.handles, handle)
		return AllocationFailed
	}
	p.Content.Reset()
	return nil
}

// build responds with the total accumulated length and the chunk starting at the requested offset
func (s *session) build(p *packet.Packet) error {
	d := polyglot.Decoder(p.Content.Bytes())
	handle, err := d.Uint32()
	if err != nil {
		return InvalidRequest
	}
	offset, err := d.Uint32()
	if err != nil {
		return InvalidRequest
	}
	acc, ok := s.handles[handle]
	if !ok {
		return UnknownHandle
	}
	chunk, total := acc.BuildRange(int(offset), buildChunkSize())
	p.Content.Reset()
	polyglot.Encoder(p.Content).Uint32(uint32(total)).String(chunk)
	return nil
}

func (s *session) release(p *packet.Packet) error {
	handle, err := polyglot.Decoder(p.Content.Bytes()).Uint32()
	if err != nil {
		return InvalidRequest
	}
	if _, ok := s.handles[handle]; !ok {
		return UnknownHandle
	}
	delete(s.handles, handle)
	p.Content.Reset()
	return nil
}
