// SPDX-License-Identifier: Apache-2.0

package accumulator

import (
	"errors"
)

// These are the transport errors that can be returned by a Conn, Client, or Server
var (
	ConnectionClosed             = errors.New("connection closed")
	ConnectionNotInitialized     = errors.New("connection not initialized")
	ConnectionAlreadyInitialized = errors.New("connection already initialized")
	TooManyRequests              = errors.New("too many requests in flight")
	InvalidContentLength         = errors.New("invalid content length")
	ContentLengthExceeded        = errors.New("content length exceeded")
	InvalidMagicHeader           = errors.New("invalid magic header")
	NotTLSConnectionError        = errors.New("connection is not of type *tls.Conn")
	ServerClosed                 = errors.New("server closed")
)

// These are the errors that the accumulator service reports back to a Client
var (
	AllocationFailed = errors.New("allocation failed")
	UnknownHandle    = errors.New("unknown handle")
	TooManyHandles   = errors.New("too many handles")
	InvalidRequest   = errors.New("invalid request")
	InvalidResponse  = errors.New("invalid response")
)

var remoteErrors = []error{AllocationFailed, UnknownHandle, TooManyHandles, InvalidRequest, ContentLengthExceeded}

// remoteError maps an error received from the service back onto the matching sentinel error
func remoteError(err error) error {
	for _, known := range remoteErrors {
		if err.Error() == known.Error() {
			return known
		}
	}
	return err
}
