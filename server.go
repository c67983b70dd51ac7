// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/loopholelabs/logging/types"
)

// Server exposes accumulators to remote callers. Every connection gets its own set of handles,
// which are released once the connection closes.
type Server struct {
	options  *Options
	logger   types.Logger
	shutdown atomic.Bool

	mu          sync.Mutex
	listener    net.Listener
	connections map[*Conn]struct{}
	wg          sync.WaitGroup
}

// NewServer returns an initialized Server
func NewServer(opts ...Option) *Server {
	options := loadOptions(opts...)
	return &Server{
		options:     options,
		logger:      options.Logger,
		connections: make(map[*Conn]struct{}),
	}
}

// Start listens on addr and serves connections until the Server is shut down.
// If a TLS configuration was provided, the listener is wrapped with it.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.options.TLSConfig != nil {
		listener = tls.NewListener(listener, s.options.TLSConfig)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until the Server is shut down, in which case it returns nil
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		_ = listener.Close()
		return ServerClosed
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("accepting connections")
	for {
		newConn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			s.logger.Error().Err(err).Msg("unable to accept connections")
			return err
		}
		go func() {
			_ = s.ServeConn(newConn)
		}()
	}
}

// ServeConn serves a single connection, blocking until it is closed by either side
func (s *Server) ServeConn(newConn net.Conn) error {
	if tcpConn, ok := newConn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(s.options.KeepAlive)
	}
	conn := NewConn(newConn, s.logger)

	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return ServerClosed
	}
	s.connections[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.connections, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection opened")
	err := newSession(conn, s.options).serve()
	_ = conn.Close()
	if errors.Is(err, ConnectionClosed) {
		s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
		return nil
	}
	s.logger.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed with error")
	return err
}

// Shutdown stops accepting connections, closes every open connection, and waits for them to finish
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.shutdown.Store(true)
	listener := s.listener
	connections := make([]*Conn, 0, len(s.connections))
	for c := range s.connections {
		connections = append(connections, c)
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	for _, c := range connections {
		_ = c.Close()
	}
	s.wg.Wait()
	return err
}
