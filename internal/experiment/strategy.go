// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"errors"
	"strings"

	"github.com/loopholelabs/accumulator-go"
)

// Strategy builds a string of the given size out of single character fragments and returns its length
type Strategy struct {
	Name string
	Run  func(ctx context.Context, size int) (int, error)
}

// Concat appends every fragment with +=, copying the whole string each time
func Concat() Strategy {
	return Strategy{
		Name: "concat",
		Run: func(_ context.Context, size int) (int, error) {
			result := ""
			for i := 0; i < size; i++ {
				result += Fragment(i)
			}
			return len(result), nil
		},
	}
}

// Builder appends every fragment to an accumulator.Accumulator
func Builder() Strategy {
	return Strategy{
		Name: "builder",
		Run: func(_ context.Context, size int) (int, error) {
			acc := accumulator.New()
			for i := 0; i < size; i++ {
				acc.Append(Fragment(i))
			}
			return len(acc.Build()), nil
		},
	}
}

// Join collects every fragment in a slice and joins them once at the end
func Join() Strategy {
	return Strategy{
		Name: "join",
		Run: func(_ context.Context, size int) (int, error) {
			fragments := make([]string, 0, size)
			for i := 0; i < size; i++ {
				fragments = append(fragments, Fragment(i))
			}
			return len(strings.Join(fragments, "")), nil
		},
	}
}

// Remote appends every fragment to an accumulator owned by the Server that c is connected to
func Remote(c *accumulator.Client) Strategy {
	return Strategy{
		Name: "remote",
		Run: func(ctx context.Context, size int) (int, error) {
			h, err := c.New(ctx)
			if err != nil {
				return 0, err
			}
			for i := 0; i < size; i++ {
				if err = h.Append(ctx, Fragment(i)); err != nil {
					if !errors.Is(err, accumulator.AllocationFailed) {
						_ = h.Release(ctx)
					}
					return 0, err
				}
			}
			result, err := h.Build(ctx)
			if err != nil {
				return 0, err
			}
			return len(result), h.Release(ctx)
		},
	}
}

// Local returns every strategy that runs in-process
func Local() []Strategy {
	return []Strategy{Concat(), Builder(), Join()}
}
