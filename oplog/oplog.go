// Package oplog records membership changes and key/value operations of a
// node. The replication core reports to a Recorder and never depends on a
// concrete implementation.
package oplog

import (
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
)

// Op is the outcome of a single key/value operation, either served by a
// replica or resolved by the coordinator.
type Op struct {
	Kind        message.Kind
	TxID        int64
	Key         string
	Value       string
	Success     bool
	Coordinator bool
}

// Recorder receives the events of a node.
type Recorder interface {
	NodeAdded(self, peer membership.PeerID)
	NodeRemoved(self, peer membership.PeerID)
	Operation(self membership.PeerID, op Op)
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) NodeAdded(_, _ membership.PeerID) {}

func (Nop) NodeRemoved(_, _ membership.PeerID) {}

func (Nop) Operation(_ membership.PeerID, _ Op) {}

// Multi fans every event out to each of the recorders in order.
type Multi []Recorder

func (m Multi) NodeAdded(self, peer membership.PeerID) {
	for _, r := range m {
		r.NodeAdded(self, peer)
	}
}

func (m Multi) NodeRemoved(self, peer membership.PeerID) {
	for _, r := range m {
		r.NodeRemoved(self, peer)
	}
}

func (m Multi) Operation(self membership.PeerID, op Op) {
	for _, r := range m {
		r.Operation(self, op)
	}
}
