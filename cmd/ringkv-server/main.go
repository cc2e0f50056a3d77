package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
)

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}

	logger := setupLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	self, introducer, err := parseAddrs()
	if err != nil {
		logger.Log("msg", "invalid node address", "err", err)
		os.Exit(1)
	}

	registry, recorder, err := setupRecorder(logger)
	if err != nil {
		logger.Log("msg", "failed to register metrics", "err", err)
		os.Exit(1)
	}

	tr, err := setupTransport(self, logger)
	if err != nil {
		logger.Log("msg", "failed to start transport", "err", err)
		os.Exit(1)
	}

	loop, err := setupNode(self, introducer, tr, recorder, logger)
	if err != nil {
		logger.Log("msg", "failed to create node", "err", err)
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(ctx)
	})

	g.Go(func() error {
		return runAPIServer(ctx, loop, registry, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Log("msg", "server stopped with error", "err", err)
	}

	if err := tr.Close(); err != nil {
		logger.Log("msg", "failed to close transport", "err", err)
	}

	logger.Log("msg", "server stopped")
}
