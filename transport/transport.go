// Package transport defines how nodes exchange encoded messages. Delivery is
// best effort: messages may be lost, duplicated or reordered, and the only
// ordering guarantee is that each node drains its inbound queue in arrival
// order.
package transport

import (
	"errors"

	"github.com/maxpoletaev/ringkv/membership"
)

var ErrClosed = errors.New("transport closed")

// Transport moves opaque payloads between peers.
type Transport interface {
	// Send hands the payload over for delivery and returns without waiting
	// for it to arrive. An error means the payload was not even sent.
	Send(to membership.PeerID, payload []byte) error

	// Receive drains the payloads received since the previous call, oldest
	// first.
	Receive() [][]byte

	Close() error
}

// Pruner is implemented by transports that hold per-peer resources. The node
// calls it with the current set of members so that resources of departed
// peers can be released.
type Pruner interface {
	Prune(alive []membership.PeerID)
}
