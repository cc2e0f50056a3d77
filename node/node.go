// Package node wires the failure detector, the ring and the quorum
// coordinator of a single peer together and drives them with a logical
// clock. A Node is not safe for concurrent use; see Loop for running one
// against wall-clock time.
package node

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/faildetector"
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication"
	"github.com/maxpoletaev/ringkv/ring"
	"github.com/maxpoletaev/ringkv/storage"
	"github.com/maxpoletaev/ringkv/transport"
)

var (
	ErrNotStarted         = errors.New("node is not started")
	ErrUnknownTransaction = errors.New("transaction is not pending on this node")
)

type Node struct {
	self      membership.PeerID
	now       int64
	started   bool
	transport transport.Transport
	store     storage.Engine
	logger    log.Logger
	onResolve func(replication.Outcome)

	// Messages addressed to self skip the transport and are handled on the
	// next tick, like any other message.
	loopback *transport.Queue

	table       *membership.Table
	detector    *faildetector.Detector
	partitioner *ring.Partitioner
	coordinator *replication.Coordinator
	stabilizer  *replication.Stabilizer
	waiters     map[int64]chan replication.Outcome
}

func New(conf *Config, tr transport.Transport, store storage.Engine) (*Node, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	recorder := conf.Recorder
	if recorder == nil {
		recorder = oplog.Nop{}
	}

	logger = log.With(logger, "node", conf.Self)

	n := &Node{
		self:        conf.Self,
		now:         conf.Epoch,
		transport:   tr,
		store:       store,
		logger:      logger,
		onResolve:   conf.OnResolve,
		loopback:    transport.NewQueue(0),
		table:       membership.NewTable(),
		partitioner: ring.NewPartitioner(conf.Self),
		waiters:     make(map[int64]chan replication.Outcome),
	}

	detector, err := faildetector.New(conf.detectorConfig(logger), n.table, n, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure detector: %w", err)
	}

	n.detector = detector

	n.coordinator = replication.NewCoordinator(&replication.Config{
		Self:      conf.Self,
		Timeout:   conf.Timeout,
		Level:     conf.Level,
		IDs:       conf.IDs,
		OnResolve: n.resolved,
		Recorder:  recorder,
		Logger:    logger,
	}, n.partitioner, store, n)

	n.stabilizer = replication.NewStabilizer(&replication.StabilizerConfig{
		Self:    conf.Self,
		GCDelay: conf.GCDelay,
		Logger:  logger,
	}, store, n)

	return n, nil
}

// Start joins the group. It is a no-op on a started node.
func (n *Node) Start() {
	if n.started {
		return
	}

	n.started = true
	n.detector.Join(n.now)
}

// Tick advances the clock by one and runs one round of the protocols:
// handle the received messages, gossip, update the ring, and expire
// stale requests.
func (n *Node) Tick() {
	if !n.started {
		return
	}

	n.now++

	for _, payload := range n.loopback.Drain() {
		n.handle(payload)
	}

	for _, payload := range n.transport.Receive() {
		n.handle(payload)
	}

	n.detector.Tick(n.now)

	if n.detector.InGroup() {
		members := n.detector.Members()

		if n.partitioner.Rebuild(members) {
			r := n.partitioner.Ring()

			level.Info(n.logger).Log("msg", "ring changed", "nodes", r.Len())
			n.stabilizer.OnRingChange(r, n.now)

			if p, ok := n.transport.(transport.Pruner); ok {
				p.Prune(members)
			}
		}
	}

	n.coordinator.Sweep(n.now)
	n.stabilizer.Collect(n.partitioner.Ring(), n.now)
}

func (n *Node) handle(payload []byte) {
	msg, err := message.Unmarshal(payload)
	if err != nil {
		level.Warn(n.logger).Log("msg", "failed to decode message", "err", err)
		return
	}

	switch msg.Kind {
	case message.KindJoinRequest:
		n.detector.HandleJoinRequest(msg, n.now)
	case message.KindJoinReply:
		n.detector.HandleJoinReply(msg, n.now)
	case message.KindGossip:
		n.detector.HandleGossip(msg, n.now)
	case message.KindCreate:
		n.coordinator.HandleCreate(msg)
	case message.KindRead:
		n.coordinator.HandleRead(msg)
	case message.KindUpdate:
		n.coordinator.HandleUpdate(msg)
	case message.KindDelete:
		n.coordinator.HandleDelete(msg)
	case message.KindReply:
		n.coordinator.HandleReply(msg, n.now)
	case message.KindReadReply:
		n.coordinator.HandleReadReply(msg, n.now)
	case message.KindUnknown:
		level.Warn(n.logger).Log("msg", "message of unknown kind", "from", msg.From)
	}
}

// Send encodes the message and hands it to the transport. Failures are
// logged and the message is lost, as the protocols tolerate message loss.
func (n *Node) Send(to membership.PeerID, msg *message.Message) {
	payload, err := message.Marshal(msg)
	if err != nil {
		level.Error(n.logger).Log("msg", "failed to encode message", "kind", msg.Kind, "err", err)
		return
	}

	if to == n.self {
		n.loopback.Push(payload)
		return
	}

	if err := n.transport.Send(to, payload); err != nil {
		level.Debug(n.logger).Log("msg", "failed to send message", "to", to, "kind", msg.Kind, "err", err)
	}
}

func (n *Node) resolved(out replication.Outcome) {
	if ch, ok := n.waiters[out.TxID]; ok {
		delete(n.waiters, out.TxID)
		ch <- out
	}

	if n.onResolve != nil {
		n.onResolve(out)
	}
}

// Await returns a channel that receives the outcome of the transaction. It
// must be called before the transaction can resolve, that is, before the
// next tick after the request was made. Only transactions coordinated by
// this node can be awaited.
func (n *Node) Await(txID int64) (<-chan replication.Outcome, error) {
	if _, ok := n.coordinator.Transaction(txID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransaction, txID)
	}

	ch := make(chan replication.Outcome, 1)
	n.waiters[txID] = ch

	return ch, nil
}

func (n *Node) Create(key, value string) (int64, error) {
	if !n.started {
		return 0, ErrNotStarted
	}

	return n.coordinator.Create(key, value, n.now)
}

func (n *Node) Read(key string) (int64, error) {
	if !n.started {
		return 0, ErrNotStarted
	}

	return n.coordinator.Read(key, n.now)
}

func (n *Node) Update(key, value string) (int64, error) {
	if !n.started {
		return 0, ErrNotStarted
	}

	return n.coordinator.Update(key, value, n.now)
}

func (n *Node) Delete(key string) (int64, error) {
	if !n.started {
		return 0, ErrNotStarted
	}

	return n.coordinator.Delete(key, n.now)
}

func (n *Node) Self() membership.PeerID {
	return n.self
}

// Now returns the current logical time of the node.
func (n *Node) Now() int64 {
	return n.now
}

func (n *Node) InGroup() bool {
	return n.detector.InGroup()
}

func (n *Node) JoinFailed() bool {
	return n.detector.JoinFailed()
}

func (n *Node) Heartbeat() int64 {
	return n.detector.Heartbeat()
}

// Members returns a copy of the membership table. Self is not included.
func (n *Node) Members() []membership.Entry {
	return n.detector.Entries()
}

// Ring returns the current ring. It only contains self until the node joins.
func (n *Node) Ring() *ring.Ring {
	return n.partitioner.Ring()
}

// Pending returns the number of unresolved requests coordinated by the node.
func (n *Node) Pending() int {
	return n.coordinator.Pending()
}

// Storage returns the local storage of the node.
func (n *Node) Storage() storage.Engine {
	return n.store
}

// Close closes the transport of the node.
func (n *Node) Close() error {
	return n.transport.Close()
}
