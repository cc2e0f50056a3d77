package main

import (
	"errors"
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"

	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/simulation"
	"github.com/maxpoletaev/ringkv/transport/emulnet"
)

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowWarn())
	}

	conf := simulation.DefaultConfig()
	conf.Nodes = opts.Nodes
	conf.Logger = logger
	conf.Network = &emulnet.Config{
		DropRate:      opts.DropRate,
		DuplicateRate: opts.DupRate,
		Seed:          opts.Seed,
	}

	sim, err := simulation.New(conf)
	if err != nil {
		logger.Log("msg", "failed to create simulation", "err", err)
		os.Exit(1)
	}

	w := simulation.DefaultWorkload()
	w.Keys = opts.Keys
	w.Failures = opts.Fail
	w.Seed = opts.Seed

	report := sim.RunWorkload(w)
	sim.Run(opts.Ticks)

	fmt.Println(report)
	fmt.Printf("members removed: %d\n", len(sim.Recorder().Filter(func(e oplog.Event) bool {
		return e.Type == oplog.EventNodeRemoved
	})))

	if !report.Converged {
		os.Exit(2)
	}
}
