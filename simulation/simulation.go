// Package simulation runs a group of nodes in one process over an emulated
// network. All nodes are ticked in lock-step on the calling goroutine, so a
// run with the same seed always produces the same events.
package simulation

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/node"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication"
	"github.com/maxpoletaev/ringkv/storage/inmemory"
	"github.com/maxpoletaev/ringkv/transport/emulnet"
)

var ErrNoSuchNode = errors.New("no such node")

// basePeer is the address of the first node. Node i listens on the port
// basePeer.Port + i.
var basePeer = membership.MustParsePeerID("10.0.0.1:7000")

type Config struct {
	// Nodes is the number of nodes created up front. The first one is the
	// introducer of the group.
	Nodes int

	Network *emulnet.Config

	// Node is the template every node config is copied from. Addresses,
	// the id allocator and the recorder are filled in by the simulation.
	Node *node.Config

	Logger log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		Nodes:   10,
		Network: emulnet.DefaultConfig(),
		Node:    node.DefaultConfig(),
		Logger:  log.NewNopLogger(),
	}
}

type Simulation struct {
	conf     Config
	logger   log.Logger
	net      *emulnet.Network
	ids      *replication.Counter
	recorder *oplog.Memory
	nodes    []*node.Node
	failed   map[int]bool
	outcomes []replication.Outcome
	now      int64
	started  bool
}

func New(conf *Config) (*Simulation, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	netConf := conf.Network
	if netConf == nil {
		netConf = emulnet.DefaultConfig()
	}

	s := &Simulation{
		conf:     *conf,
		logger:   logger,
		net:      emulnet.New(netConf),
		ids:      replication.NewCounter(),
		recorder: oplog.NewMemory(),
		failed:   make(map[int]bool),
	}

	if s.conf.Node == nil {
		s.conf.Node = node.DefaultConfig()
	}

	for i := 0; i < conf.Nodes; i++ {
		if _, err := s.addNode(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func peerAt(i int) membership.PeerID {
	return membership.PeerID{
		Host: basePeer.Host,
		Port: basePeer.Port + uint16(i),
	}
}

func (s *Simulation) addNode() (*node.Node, error) {
	self := peerAt(len(s.nodes))

	ep, err := s.net.Endpoint(self)
	if err != nil {
		return nil, fmt.Errorf("failed to attach %s: %w", self, err)
	}

	conf := *s.conf.Node
	conf.Self = self
	conf.Introducer = peerAt(0)
	conf.Epoch = s.now
	conf.IDs = s.ids
	conf.Recorder = s.recorder
	conf.Logger = s.logger
	conf.OnResolve = func(out replication.Outcome) {
		s.outcomes = append(s.outcomes, out)
	}

	n, err := node.New(&conf, ep, inmemory.New())
	if err != nil {
		return nil, err
	}

	s.nodes = append(s.nodes, n)

	return n, nil
}

// AddNode creates a new node. It is started right away if the simulation
// is already running.
func (s *Simulation) AddNode() (*node.Node, error) {
	n, err := s.addNode()
	if err != nil {
		return nil, err
	}

	if s.started {
		n.Start()
		level.Info(s.logger).Log("msg", "node added", "peer", n.Self(), "time", s.now)
	}

	return n, nil
}

// Start starts every node. The introducer goes first, so that the join
// requests of the others find it in the group.
func (s *Simulation) Start() {
	if s.started {
		return
	}

	s.started = true

	for _, n := range s.nodes {
		n.Start()
	}
}

// Step advances the time by one tick and ticks every live node in order.
func (s *Simulation) Step() {
	s.now++

	for i, n := range s.nodes {
		if !s.failed[i] {
			n.Tick()
		}
	}
}

func (s *Simulation) Run(ticks int) {
	for i := 0; i < ticks; i++ {
		s.Step()
	}
}

// RunUntil steps until the condition holds or the limit of ticks is reached.
// It returns the number of ticks taken and whether the condition was met.
func (s *Simulation) RunUntil(limit int, cond func() bool) (int, bool) {
	for i := 0; i < limit; i++ {
		if cond() {
			return i, true
		}

		s.Step()
	}

	return limit, cond()
}

// Fail crashes the node: it stops being ticked and the network drops all of
// its traffic.
func (s *Simulation) Fail(i int) error {
	if i < 0 || i >= len(s.nodes) {
		return fmt.Errorf("%w: %d", ErrNoSuchNode, i)
	}

	s.failed[i] = true
	s.net.Fail(s.nodes[i].Self())

	level.Info(s.logger).Log("msg", "node failed", "peer", s.nodes[i].Self(), "time", s.now)

	return nil
}

func (s *Simulation) Failed(i int) bool {
	return s.failed[i]
}

// Alive returns the indexes of the nodes that have not failed.
func (s *Simulation) Alive() []int {
	alive := make([]int, 0, len(s.nodes))

	for i := range s.nodes {
		if !s.failed[i] {
			alive = append(alive, i)
		}
	}

	return alive
}

// Converged reports whether every live node is in the group and knows about
// every other live node.
func (s *Simulation) Converged() bool {
	alive := s.Alive()

	for _, i := range alive {
		n := s.nodes[i]
		if !n.InGroup() || len(n.Members()) != len(alive)-1 {
			return false
		}
	}

	return true
}

// Holders returns the number of live nodes with the key in local storage.
func (s *Simulation) Holders(key string) int {
	count := 0

	for _, i := range s.Alive() {
		if _, ok := s.nodes[i].Storage().Read(key); ok {
			count++
		}
	}

	return count
}

func (s *Simulation) Node(i int) *node.Node {
	return s.nodes[i]
}

func (s *Simulation) Len() int {
	return len(s.nodes)
}

func (s *Simulation) Now() int64 {
	return s.now
}

func (s *Simulation) Network() *emulnet.Network {
	return s.net
}

func (s *Simulation) Recorder() *oplog.Memory {
	return s.recorder
}

// Outcomes returns the outcomes of all requests resolved so far, in the
// order they were resolved.
func (s *Simulation) Outcomes() []replication.Outcome {
	out := make([]replication.Outcome, len(s.outcomes))
	copy(out, s.outcomes)

	return out
}
