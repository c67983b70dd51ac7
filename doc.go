// SPDX-License-Identifier: Apache-2.0

// Package accumulator provides a growable string accumulator, and a small packet based service
// that lets a caller in another process construct accumulators and drive them remotely.
//
// The Accumulator collects fragments of text and builds their concatenation on demand:
//
//	acc := accumulator.New()
//	acc.Append("Hello, ")
//	acc.Append("World")
//	acc.Append("!")
//	fmt.Println(acc.Build()) // Hello, World!
//
// Its backing buffer grows geometrically, so appending is amortized constant time per byte.
// An Accumulator is not safe for concurrent use; Synchronized wraps one behind a mutex.
//
// The same operations are available over the network. A Server hands out opaque handles to
// accumulators that live for as long as the connection that created them:
//
//	s := accumulator.NewServer(accumulator.WithLogger(logger))
//	go s.Start(":8192")
//
//	c := accumulator.NewClient()
//	err := c.Connect(ctx, "127.0.0.1:8192")
//	h, err := c.New(ctx)
//	err = h.Append(ctx, "Hello, World!")
//	value, err := h.Build(ctx)
//
// All exported methods of the Client and Server are safe to be used concurrently.
package accumulator
