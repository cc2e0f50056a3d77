// Package emulnet is an in-process network for running many nodes in one
// program. It can lose and duplicate messages and crash endpoints, with all
// randomness taken from a seeded source so that runs are reproducible.
package emulnet

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/transport"
)

var ErrAddressInUse = errors.New("address already in use")

type Config struct {
	// DropRate is the probability of a message being lost.
	DropRate float64

	// DuplicateRate is the probability of a delivered message arriving twice.
	DuplicateRate float64

	// QueueSize bounds the inbound queue of every endpoint. Zero means
	// unbounded.
	QueueSize int

	Seed int64
}

func DefaultConfig() *Config {
	return &Config{Seed: 1}
}

// Stats are the traffic counters of one endpoint.
type Stats struct {
	Sent       uint64
	Received   uint64
	Dropped    uint64
	Duplicated uint64
}

// Network connects the endpoints created from it.
type Network struct {
	mut       sync.Mutex
	conf      Config
	rnd       *rand.Rand
	endpoints map[membership.PeerID]*Endpoint
	failed    map[membership.PeerID]bool
	stats     map[membership.PeerID]*Stats
}

func New(conf *Config) *Network {
	return &Network{
		conf:      *conf,
		rnd:       rand.New(rand.NewSource(conf.Seed)),
		endpoints: make(map[membership.PeerID]*Endpoint),
		failed:    make(map[membership.PeerID]bool),
		stats:     make(map[membership.PeerID]*Stats),
	}
}

// Endpoint attaches a new endpoint with the given address to the network.
func (n *Network) Endpoint(id membership.PeerID) (*Endpoint, error) {
	n.mut.Lock()
	defer n.mut.Unlock()

	if _, ok := n.endpoints[id]; ok {
		return nil, ErrAddressInUse
	}

	ep := &Endpoint{
		id:    id,
		net:   n,
		inbox: transport.NewQueue(n.conf.QueueSize),
	}

	n.endpoints[id] = ep
	delete(n.failed, id)

	if _, ok := n.stats[id]; !ok {
		n.stats[id] = &Stats{}
	}

	return ep, nil
}

// Fail crashes the endpoint: it neither sends nor receives until recovered.
func (n *Network) Fail(id membership.PeerID) {
	n.mut.Lock()
	defer n.mut.Unlock()

	n.failed[id] = true

	if ep, ok := n.endpoints[id]; ok {
		ep.inbox.Drain()
	}
}

// Recover brings a failed endpoint back.
func (n *Network) Recover(id membership.PeerID) {
	n.mut.Lock()
	defer n.mut.Unlock()

	delete(n.failed, id)
}

// Failed reports whether the endpoint is crashed.
func (n *Network) Failed(id membership.PeerID) bool {
	n.mut.Lock()
	defer n.mut.Unlock()

	return n.failed[id]
}

// Stats returns a copy of the counters of the endpoint.
func (n *Network) Stats(id membership.PeerID) Stats {
	n.mut.Lock()
	defer n.mut.Unlock()

	if s, ok := n.stats[id]; ok {
		return *s
	}

	return Stats{}
}

// Total returns the counters summed over all endpoints.
func (n *Network) Total() Stats {
	n.mut.Lock()
	defer n.mut.Unlock()

	var total Stats

	for _, s := range n.stats {
		total.Sent += s.Sent
		total.Received += s.Received
		total.Dropped += s.Dropped
		total.Duplicated += s.Duplicated
	}

	return total
}

func (n *Network) send(from, to membership.PeerID, payload []byte) {
	n.mut.Lock()
	defer n.mut.Unlock()

	stats := n.stats[from]
	stats.Sent++

	dst, ok := n.endpoints[to]
	if !ok || n.failed[from] || n.failed[to] {
		stats.Dropped++
		return
	}

	if n.conf.DropRate > 0 && n.rnd.Float64() < n.conf.DropRate {
		stats.Dropped++
		return
	}

	// The receiver owns the buffer it gets.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	copies := 1
	if n.conf.DuplicateRate > 0 && n.rnd.Float64() < n.conf.DuplicateRate {
		stats.Duplicated++
		copies = 2
	}

	for i := 0; i < copies; i++ {
		if dst.inbox.Push(buf) {
			n.stats[to].Received++
		} else {
			stats.Dropped++
		}
	}
}

func (n *Network) detach(id membership.PeerID) {
	n.mut.Lock()
	defer n.mut.Unlock()

	delete(n.endpoints, id)
}

// Endpoint is the transport of a single node on the network.
type Endpoint struct {
	id     membership.PeerID
	net    *Network
	inbox  *transport.Queue
	mut    sync.Mutex
	closed bool
}

var _ transport.Transport = (*Endpoint)(nil)

func (e *Endpoint) ID() membership.PeerID {
	return e.id
}

func (e *Endpoint) Send(to membership.PeerID, payload []byte) error {
	if e.isClosed() {
		return transport.ErrClosed
	}

	e.net.send(e.id, to, payload)

	return nil
}

func (e *Endpoint) Receive() [][]byte {
	if e.isClosed() {
		return nil
	}

	return e.inbox.Drain()
}

func (e *Endpoint) Close() error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.closed {
		return transport.ErrClosed
	}

	e.closed = true
	e.net.detach(e.id)

	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mut.Lock()
	defer e.mut.Unlock()

	return e.closed
}
