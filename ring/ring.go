package ring

import (
	"sort"

	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/ringkv/membership"
)

// ReplicationFactor is the number of nodes holding a copy of each key.
const ReplicationFactor = 3

// Node is a member placed on the ring.
type Node struct {
	Peer     membership.PeerID
	Position uint64
}

// Ring is an immutable list of nodes sorted by position. Nodes with equal
// positions are ordered by peer, so the same set of members produces the
// same ring everywhere.
type Ring struct {
	nodes []Node
}

// Build places self and every member on a new ring. Duplicates are ignored.
func Build(self membership.PeerID, members []membership.PeerID) *Ring {
	seen := make(map[membership.PeerID]struct{}, len(members)+1)
	nodes := make([]Node, 0, len(members)+1)

	for _, peer := range append([]membership.PeerID{self}, members...) {
		if _, ok := seen[peer]; ok {
			continue
		}

		seen[peer] = struct{}{}
		nodes = append(nodes, Node{Peer: peer, Position: HashPeer(peer)})
	}

	return FromNodes(nodes)
}

// FromNodes creates a ring from nodes with precomputed positions. The slice
// is copied.
func FromNodes(nodes []Node) *Ring {
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}

		return sorted[i].Peer.Less(sorted[j].Peer)
	})

	return &Ring{nodes: sorted}
}

// Len returns the number of nodes on the ring.
func (r *Ring) Len() int {
	return len(r.nodes)
}

// Nodes returns a copy of the nodes in ring order.
func (r *Ring) Nodes() []Node {
	nodes := make([]Node, len(r.nodes))
	copy(nodes, r.nodes)

	return nodes
}

// Positions returns the positions of the nodes in ring order.
func (r *Ring) Positions() []uint64 {
	positions := make([]uint64, len(r.nodes))
	for i := range r.nodes {
		positions[i] = r.nodes[i].Position
	}

	return positions
}

// Equal reports whether both rings have the same positions in the same order.
func (r *Ring) Equal(other *Ring) bool {
	if r == nil || other == nil {
		return r == other
	}

	return slices.Equal(r.Positions(), other.Positions())
}

// ReplicasFor returns the nodes responsible for the key, primary first.
func (r *Ring) ReplicasFor(key string) []Node {
	return r.ReplicasForPosition(HashKey(key))
}

// ReplicasForPosition returns the ReplicationFactor nodes responsible for the
// position: the first node whose position is not less than pos, followed by
// its successors. Positions past the last node, or not past the first one,
// belong to the first three nodes. Nil is returned while the ring is too
// small to hold all replicas.
func (r *Ring) ReplicasForPosition(pos uint64) []Node {
	n := len(r.nodes)
	if n < ReplicationFactor {
		return nil
	}

	start := 0

	if pos > r.nodes[0].Position && pos <= r.nodes[n-1].Position {
		start = sort.Search(n, func(i int) bool {
			return r.nodes[i].Position >= pos
		})
	}

	replicas := make([]Node, ReplicationFactor)
	for i := range replicas {
		replicas[i] = r.nodes[(start+i)%n]
	}

	return replicas
}

// IsReplica reports whether the peer is one of the replicas of the key.
func (r *Ring) IsReplica(peer membership.PeerID, key string) bool {
	for _, node := range r.ReplicasFor(key) {
		if node.Peer == peer {
			return true
		}
	}

	return false
}

// Peers returns the peers of the nodes.
func Peers(nodes []Node) []membership.PeerID {
	peers := make([]membership.PeerID, len(nodes))
	for i := range nodes {
		peers[i] = nodes[i].Peer
	}

	return peers
}
