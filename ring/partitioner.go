package ring

import "github.com/maxpoletaev/ringkv/membership"

// Partitioner keeps the current ring of a node and detects when the
// membership change moves nodes on it.
type Partitioner struct {
	self membership.PeerID
	ring *Ring
}

func NewPartitioner(self membership.PeerID) *Partitioner {
	return &Partitioner{
		self: self,
		ring: Build(self, nil),
	}
}

// Rebuild replaces the ring with one built from the members plus self. It
// returns true if the sequence of positions differs from the previous ring.
func (p *Partitioner) Rebuild(members []membership.PeerID) bool {
	next := Build(p.self, members)
	changed := !p.ring.Equal(next)
	p.ring = next

	return changed
}

// Ring returns the current ring.
func (p *Partitioner) Ring() *Ring {
	return p.ring
}

// ReplicasFor returns the replicas of the key on the current ring.
func (p *Partitioner) ReplicasFor(key string) []Node {
	return p.ring.ReplicasFor(key)
}
