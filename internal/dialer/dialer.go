// SPDX-License-Identifier: Apache-2.0

package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Retry is a net.Dialer that retries dialing up to NumRetries times, waiting Backoff between attempts
type Retry struct {
	*net.Dialer
	NumRetries int
	Backoff    time.Duration
}

// NewRetry returns a Retry Dialer with default values.
func NewRetry() *Retry {
	return &Retry{
		Dialer: &net.Dialer{
			Timeout:   time.Second,
			KeepAlive: time.Second * 15,
		},
		NumRetries: 10,
		Backoff:    time.Millisecond * 50,
	}
}

// DialContext calls the underlying *net.Dialer to dial a net.Conn, but retries on failure
func (r *Retry) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	return r.retry(ctx, func() (net.Conn, error) {
		return r.Dialer.DialContext(ctx, network, address)
	})
}

// DialTLSContext creates a new TLS Dialer using the underlying *net.Dialer and uses it to dial a net.Conn, but retries on failure
func (r *Retry) DialTLSContext(ctx context.Context, network string, address string, config *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: r.Dialer,
		Config:    config,
	}
	return r.retry(ctx, func() (net.Conn, error) {
		return d.DialContext(ctx, network, address)
	})
}

func (r *Retry) retry(ctx context.Context, dial func() (net.Conn, error)) (c net.Conn, err error) {
	attempts := r.NumRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 && r.Backoff > 0 {
			timer := time.NewTimer(r.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		c, err = dial()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return
}
