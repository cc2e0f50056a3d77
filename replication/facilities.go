package replication

import (
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/ring"
)

// Sender delivers a message to a peer. Delivery is best effort.
type Sender interface {
	Send(to membership.PeerID, msg *message.Message)
}

// Placement maps a key to its replicas. Implemented by ring.Partitioner.
type Placement interface {
	ReplicasFor(key string) []ring.Node
}
