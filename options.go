// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"crypto/tls"
	"time"

	"github.com/loopholelabs/logging/loggers/noop"
	"github.com/loopholelabs/logging/types"
)

// Unlimited disables a MaxBufferSize or MaxHandles limit
const Unlimited = -1

var (
	DefaultKeepAlive     = time.Minute * 3
	DefaultMaxBufferSize = 64 << 20 // 64 MB
	DefaultMaxHandles    = 1024
	DefaultQueueSize     = uint64(128)
)

// Option is used to generate Client and Server options internally
type Option func(opts *Options)

// Options is used to provide the Client and Server with configuration options.
//
// Default Values:
//
//	options := Options {
//		KeepAlive: time.Minute * 3,
//		Logger: noop.New(types.InfoLevel),
//		MaxBufferSize: 64 << 20,
//		MaxHandles: 1024,
//		QueueSize: 128,
//	}
//
// Zero values are replaced by these defaults, so a partially filled Options only changes the fields it sets.
// Set MaxBufferSize or MaxHandles to Unlimited to disable that limit.
type Options struct {
	KeepAlive     time.Duration
	Logger        types.Logger
	TLSConfig     *tls.Config
	MaxBufferSize int
	MaxHandles    int
	QueueSize     uint64
}

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}

	if opts.Logger == nil {
		opts.Logger = noop.New(types.InfoLevel)
	}

	if opts.KeepAlive == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}

	if opts.QueueSize == 0 {
		opts.QueueSize = DefaultQueueSize
	}

	if opts.MaxBufferSize == 0 {
		opts.MaxBufferSize = DefaultMaxBufferSize
	} else if opts.MaxBufferSize < 0 {
		opts.MaxBufferSize = Unlimited
	}

	if opts.MaxHandles == 0 {
		opts.MaxHandles = DefaultMaxHandles
	} else if opts.MaxHandles < 0 {
		opts.MaxHandles = Unlimited
	}

	return opts
}

// WithOptions allows users to pass in an Options struct to configure a Client or Server
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithKeepAlive sets the minimum time between TCP keep-alive probes
func WithKeepAlive(keepAlive time.Duration) Option {
	return func(opts *Options) {
		opts.KeepAlive = keepAlive
	}
}

// WithLogger sets the logger for the Client or Server
func WithLogger(logger types.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithTLS sets the TLS configuration for the Client or Server
func WithTLS(tlsConfig *tls.Config) Option {
	return func(opts *Options) {
		opts.TLSConfig = tlsConfig
	}
}

// WithMaxBufferSize sets the largest accumulated size, in bytes, that the Server will grow a single handle to.
// Unlimited disables the limit.
func WithMaxBufferSize(size int) Option {
	return func(opts *Options) {
		opts.MaxBufferSize = size
	}
}

// WithMaxHandles sets the number of handles a single connection may hold open at once.
// Unlimited disables the limit.
func WithMaxHandles(handles int) Option {
	return func(opts *Options) {
		opts.MaxHandles = handles
	}
}

// WithQueueSize sets the number of incoming packets the Server buffers per connection
func WithQueueSize(size uint64) Option {
	return func(opts *Options) {
		opts.QueueSize = size
	}
}
