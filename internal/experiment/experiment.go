// SPDX-License-Identifier: Apache-2.0

// Package experiment times different ways of building a string out of many single character fragments
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/loopholelabs/logging/loggers/noop"
	"github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/accumulator-go"
)

var (
	InvalidBase       = errors.New("base must be at least 2")
	InvalidPowerLimit = errors.New("power limit must be at least 1")
	SizeOverflow      = errors.New("size overflows int")
)

var (
	DefaultBase       = 2
	DefaultPowerLimit = 27
	DefaultTimeout    = time.Second * 2
)

// digits holds the fragment appended at step i, which is always the decimal digit i % 10
var digits [10]string

func init() {
	for i := range digits {
		digits[i] = strconv.Itoa(i)
	}
}

// Fragment returns the fragment appended at step i
func Fragment(i int) string {
	return digits[i%10]
}

// Config controls the sizes an experiment runs at.
// A strategy whose run takes longer than Timeout, or that runs out of room for the text it builds,
// is skipped for every larger size.
type Config struct {
	Base       int
	PowerLimit int
	Timeout    time.Duration
	Logger     types.Logger
}

// Result is the outcome of running one strategy at one size
type Result struct {
	Strategy string
	Base     int
	Power    int
	Size     int
	Length   int
	Duration time.Duration
}

// String formats the result as "<strategy> <base>^<power> <size> <length> <milliseconds>"
func (r Result) String() string {
	return fmt.Sprintf("%s %d^%d %d %d %d", r.Strategy, r.Base, r.Power, r.Size, r.Length, r.Duration.Milliseconds())
}

func (c *Config) normalize() error {
	if c.Base == 0 {
		c.Base = DefaultBase
	}
	if c.PowerLimit == 0 {
		c.PowerLimit = DefaultPowerLimit
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = noop.New(types.InfoLevel)
	}
	if c.Base < 2 {
		return InvalidBase
	}
	if c.PowerLimit < 1 {
		return InvalidPowerLimit
	}
	if float64(c.PowerLimit)*math.Log2(float64(c.Base)) >= 62 {
		return SizeOverflow
	}
	return nil
}

// Run executes every strategy at sizes Base^1 through Base^PowerLimit, calling report with each result as it is
// produced. It stops early if ctx is canceled or if a strategy fails.
func Run(ctx context.Context, config Config, strategies []Strategy, report func(Result)) error {
	if err := config.normalize(); err != nil {
		return err
	}

	skipped := make(map[string]struct{}, len(strategies))
	size := 1
	for power := 1; power <= config.PowerLimit; power++ {
		size *= config.Base
		for _, strategy := range strategies {
			if _, ok := skipped[strategy.Name]; ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			length, err := strategy.Run(ctx, size)
			duration := time.Since(start)
			if errors.Is(err, accumulator.AllocationFailed) {
				config.Logger.Info().Str("strategy", strategy.Name).Int("power", power).Msg("out of room, skipping larger sizes")
				skipped[strategy.Name] = struct{}{}
				continue
			}
			if err != nil {
				return fmt.Errorf("strategy %s at %d^%d: %w", strategy.Name, config.Base, power, err)
			}

			report(Result{
				Strategy: strategy.Name,
				Base:     config.Base,
				Power:    power,
				Size:     size,
				Length:   length,
				Duration: duration,
			})

			if duration > config.Timeout {
				config.Logger.Info().Str("strategy", strategy.Name).Int("power", power).Msgf("took %s, skipping larger sizes", duration)
				skipped[strategy.Name] = struct{}{}
			}
		}
		if len(skipped) == len(strategies) {
			config.Logger.Debug().Int("power", power).Msg("every strategy was skipped")
			return nil
		}
	}
	return nil
}
