// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"

	"github.com/loopholelabs/accumulator-go"
	"github.com/loopholelabs/accumulator-go/internal/experiment"
)

const usage = `usage: accumulator <command> [flags]

commands:
  serve        serve accumulators to remote clients
  experiment   time string building strategies at growing sizes
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := logging.New(logging.Zerolog, "accumulator", os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(ctx, logger, os.Args[2:])
	case "experiment":
		err = runExperiment(ctx, logger, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func serve(ctx context.Context, logger types.Logger, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := flags.String("listen", ":8192", "address to listen on")
	maxBuffer := flags.Int("max-buffer", accumulator.DefaultMaxBufferSize, "largest accumulated size in bytes per handle, -1 for unlimited")
	maxHandles := flags.Int("max-handles", accumulator.DefaultMaxHandles, "open handles allowed per connection, -1 for unlimited")
	keepAlive := flags.Duration("keep-alive", accumulator.DefaultKeepAlive, "TCP keep-alive period")
	_ = flags.Parse(args)

	s := accumulator.NewServer(
		accumulator.WithLogger(logger),
		accumulator.WithMaxBufferSize(*maxBuffer),
		accumulator.WithMaxHandles(*maxHandles),
		accumulator.WithKeepAlive(*keepAlive),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(*listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := s.Shutdown(); err != nil {
			return err
		}
		return <-errCh
	}
}

func runExperiment(ctx context.Context, logger types.Logger, args []string) error {
	flags := flag.NewFlagSet("experiment", flag.ExitOnError)
	base := flags.Int("base", experiment.DefaultBase, "sizes grow as base^power")
	powerLimit := flags.Int("power", experiment.DefaultPowerLimit, "largest power to run")
	timeout := flags.Duration("timeout", experiment.DefaultTimeout, "skip a strategy at larger sizes once a run takes longer than this")
	remote := flags.String("remote", "", "address of an accumulator server to include in the experiment")
	_ = flags.Parse(args)

	strategies := experiment.Local()
	if *remote != "" {
		c := accumulator.NewClient(accumulator.WithLogger(logger))
		dialCtx, cancel := context.WithTimeout(ctx, time.Second*10)
		err := c.Connect(dialCtx, *remote)
		cancel()
		if err != nil {
			return fmt.Errorf("unable to connect to %s: %w", *remote, err)
		}
		defer c.Close()
		strategies = append(strategies, experiment.Remote(c))
	}

	err := experiment.Run(ctx, experiment.Config{
		Base:       *base,
		PowerLimit: *powerLimit,
		Timeout:    *timeout,
		Logger:     logger,
	}, strategies, func(r experiment.Result) {
		fmt.Println(r.String())
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
