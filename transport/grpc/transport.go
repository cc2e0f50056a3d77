// Package grpc delivers messages through a unary gRPC call. Every peer gets
// its own connection and outbound backlog.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/transport"
)

var ErrBacklogFull = errors.New("outbound backlog is full")

type Config struct {
	// BindAddr is the address the gRPC server listens on.
	BindAddr string

	// Backlog is the number of payloads queued per peer before new ones are
	// dropped.
	Backlog int

	// QueueSize bounds the inbound queue. Zero means unbounded.
	QueueSize int

	// CallTimeout limits a single delivery.
	CallTimeout time.Duration

	Logger log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:    "0.0.0.0:7947",
		Backlog:     1024,
		QueueSize:   10000,
		CallTimeout: time.Second,
		Logger:      log.NewNopLogger(),
	}
}

type Transport struct {
	server *grpc.Server
	lis    net.Listener
	conns  *connRegistry
	inbox  *transport.Queue
	logger log.Logger
	served chan error
	closed int32
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Pruner    = (*Transport)(nil)
)

// Listen starts the gRPC server on the configured address.
func Listen(conf *Config) (*Transport, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	logger = log.With(logger, "component", "grpc")

	lis, err := net.Listen("tcp", conf.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", conf.BindAddr, err)
	}

	t := &Transport{
		server: grpc.NewServer(),
		lis:    lis,
		conns:  newConnRegistry(conf.Backlog, conf.CallTimeout, logger),
		inbox:  transport.NewQueue(conf.QueueSize),
		logger: logger,
		served: make(chan error, 1),
	}

	t.server.RegisterService(&serviceDesc, t)

	go func() {
		t.served <- t.server.Serve(lis)
	}()

	return t, nil
}

// Addr returns the address the server is listening on.
func (t *Transport) Addr() net.Addr {
	return t.lis.Addr()
}

func (t *Transport) Deliver(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if len(in.Value) > 0 && !t.inbox.Push(in.Value) {
		level.Warn(t.logger).Log("msg", "inbound queue is full, message dropped")
	}

	return &emptypb.Empty{}, nil
}

func (t *Transport) Send(to membership.PeerID, payload []byte) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return transport.ErrClosed
	}

	pc, err := t.conns.Get(to)
	if err != nil {
		return err
	}

	if !pc.enqueue(payload) {
		return fmt.Errorf("%w: %s", ErrBacklogFull, to)
	}

	return nil
}

func (t *Transport) Receive() [][]byte {
	return t.inbox.Drain()
}

// Prune closes the connections to peers that are no longer members.
func (t *Transport) Prune(alive []membership.PeerID) {
	keep := make(map[membership.PeerID]struct{}, len(alive))
	for _, peer := range alive {
		keep[peer] = struct{}{}
	}

	closed := t.conns.CollectGarbage(func(peer membership.PeerID) bool {
		_, ok := keep[peer]
		return ok
	})

	if closed > 0 {
		level.Debug(t.logger).Log("msg", "closed connections to departed peers", "count", closed)
	}
}

func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return transport.ErrClosed
	}

	t.server.Stop()

	err := t.conns.Close()
	if serveErr := <-t.served; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		level.Warn(t.logger).Log("msg", "grpc server exited with error", "err", serveErr)
	}

	return err
}
