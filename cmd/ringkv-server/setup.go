package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxpoletaev/ringkv/api"
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/node"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication/consistency"
	"github.com/maxpoletaev/ringkv/storage/inmemory"
	"github.com/maxpoletaev/ringkv/transport"
	"github.com/maxpoletaev/ringkv/transport/grpc"
	"github.com/maxpoletaev/ringkv/transport/udp"
)

func setupLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger
}

func parseAddrs() (self, introducer membership.PeerID, err error) {
	self, err = membership.ParsePeerID(opts.Node.Addr)
	if err != nil {
		return self, introducer, err
	}

	if opts.Node.Introducer == "" {
		return self, self, nil
	}

	introducer, err = membership.ParsePeerID(opts.Node.Introducer)

	return self, introducer, err
}

func setupRecorder(logger kitlog.Logger) (*prometheus.Registry, oplog.Recorder, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := oplog.NewMetrics(registry)
	if err != nil {
		return nil, nil, err
	}

	recorder := oplog.Multi{
		oplog.NewLogger(logger),
		metrics,
	}

	return registry, recorder, nil
}

func setupTransport(self membership.PeerID, logger kitlog.Logger) (transport.Transport, error) {
	port := int(self.Port)

	switch opts.Transport.Kind {
	case "grpc":
		conf := grpc.DefaultConfig()
		conf.BindAddr = net.JoinHostPort(opts.Transport.BindAddr, strconv.Itoa(port))
		conf.QueueSize = opts.Transport.QueueSize
		conf.Logger = logger

		return grpc.Listen(conf)

	case "udp":
		conf := udp.DefaultConfig()
		conf.BindAddr = opts.Transport.BindAddr
		conf.BindPort = port
		conf.QueueSize = opts.Transport.QueueSize
		conf.Logger = logger

		return udp.New(conf)

	default:
		return nil, fmt.Errorf("unknown transport: %s", opts.Transport.Kind)
	}
}

func setupNode(
	self, introducer membership.PeerID,
	tr transport.Transport,
	recorder oplog.Recorder,
	logger kitlog.Logger,
) (*node.Loop, error) {
	lvl, err := consistency.Parse(opts.Replication.Level)
	if err != nil {
		return nil, err
	}

	conf := node.DefaultConfig()
	conf.Self = self
	conf.Introducer = introducer
	conf.TFail = opts.Cluster.TFail
	conf.TRemove = opts.Cluster.TRemove
	conf.JoinRetries = opts.Cluster.JoinRetries
	conf.JoinBackoff = opts.Cluster.JoinBackoff
	conf.JoinMaxBackoff = opts.Cluster.JoinMaxBackoff
	conf.Level = lvl
	conf.Timeout = opts.Replication.Timeout
	conf.GCDelay = opts.Replication.GCDelay
	conf.Recorder = recorder
	conf.Logger = logger

	n, err := node.New(conf, tr, inmemory.New())
	if err != nil {
		return nil, err
	}

	interval := time.Duration(opts.Node.TickInterval) * time.Millisecond

	return node.NewLoop(n, interval, logger), nil
}

func runAPIServer(ctx context.Context, loop *node.Loop, registry *prometheus.Registry, logger kitlog.Logger) error {
	timeout := time.Duration(opts.RestAPI.Timeout) * time.Millisecond

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Mount("/", http.TimeoutHandler(api.CreateRouter(loop), timeout, "request timed out"))

	return api.StartServer(ctx, router, logger, opts.RestAPI.BindAddr)
}
