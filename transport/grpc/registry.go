package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/maxpoletaev/ringkv/internal/multierror"
	"github.com/maxpoletaev/ringkv/membership"
)

// peerConn is the outbound channel to a single peer. Payloads are queued and
// delivered by a dedicated goroutine, so Send never waits for the network.
type peerConn struct {
	peer    membership.PeerID
	conn    *grpc.ClientConn
	out     chan []byte
	done    chan struct{}
	timeout time.Duration
	logger  log.Logger
}

func dial(peer membership.PeerID, backlog int, timeout time.Duration, logger log.Logger) (*peerConn, error) {
	// Dial does not block, the connection is established on first use.
	conn, err := grpc.Dial(
		peer.String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)

	if err != nil {
		return nil, fmt.Errorf("grpc dial failed: %w", err)
	}

	pc := &peerConn{
		peer:    peer,
		conn:    conn,
		out:     make(chan []byte, backlog),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  log.With(logger, "peer", peer),
	}

	go pc.run()

	return pc, nil
}

func (pc *peerConn) run() {
	defer close(pc.done)

	for payload := range pc.out {
		ctx, cancel := context.WithTimeout(context.Background(), pc.timeout)
		err := pc.conn.Invoke(ctx, deliverMethod, &wrapperspb.BytesValue{Value: payload}, &emptypb.Empty{})
		cancel()

		if err != nil {
			level.Debug(pc.logger).Log("msg", "delivery failed", "err", err)
		}
	}
}

// enqueue returns false if the backlog of the peer is full.
func (pc *peerConn) enqueue(payload []byte) bool {
	select {
	case pc.out <- payload:
		return true
	default:
		return false
	}
}

func (pc *peerConn) close() error {
	close(pc.out)
	<-pc.done

	return pc.conn.Close()
}

// connRegistry keeps one lazily dialed connection per peer.
type connRegistry struct {
	mut     sync.Mutex
	conns   map[membership.PeerID]*peerConn
	backlog int
	timeout time.Duration
	logger  log.Logger
}

func newConnRegistry(backlog int, timeout time.Duration, logger log.Logger) *connRegistry {
	return &connRegistry{
		conns:   make(map[membership.PeerID]*peerConn),
		backlog: backlog,
		timeout: timeout,
		logger:  logger,
	}
}

// Get returns the connection to the peer, dialing it if there is none yet.
func (r *connRegistry) Get(peer membership.PeerID) (*peerConn, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if pc, ok := r.conns[peer]; ok {
		return pc, nil
	}

	pc, err := dial(peer, r.backlog, r.timeout, r.logger)
	if err != nil {
		return nil, err
	}

	r.conns[peer] = pc

	return pc, nil
}

// CollectGarbage closes and removes the connections of peers for which keep
// returns false.
func (r *connRegistry) CollectGarbage(keep func(membership.PeerID) bool) int {
	r.mut.Lock()
	stale := make([]*peerConn, 0)

	for peer, pc := range r.conns {
		if !keep(peer) {
			stale = append(stale, pc)
			delete(r.conns, peer)
		}
	}

	r.mut.Unlock()

	for _, pc := range stale {
		if err := pc.close(); err != nil {
			level.Debug(r.logger).Log("msg", "failed to close connection", "peer", pc.peer, "err", err)
		}
	}

	return len(stale)
}

func (r *connRegistry) Len() int {
	r.mut.Lock()
	defer r.mut.Unlock()

	return len(r.conns)
}

// Close closes every connection and returns the combined errors.
func (r *connRegistry) Close() error {
	r.mut.Lock()
	conns := r.conns
	r.conns = make(map[membership.PeerID]*peerConn)
	r.mut.Unlock()

	errs := multierror.New[membership.PeerID]()

	for peer, pc := range conns {
		errs.Add(peer, pc.close())
	}

	return errs.Combined()
}
