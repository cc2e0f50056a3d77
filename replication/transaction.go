package replication

import (
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
)

// Transaction tracks the replies to a single client request.
type Transaction struct {
	ID        int64
	Kind      message.Kind
	Key       string
	Value     string
	CreatedAt int64
	Replies   int
	Successes int

	// Responders are the replicas that have replied so far. The network may
	// duplicate messages, and a replica is only counted once.
	Responders []membership.PeerID
}

// HasReplied reports whether a reply from the peer has already been counted.
func (tx Transaction) HasReplied(peer membership.PeerID) bool {
	return slices.Contains(tx.Responders, peer)
}

// Failures returns the number of replies that reported a failure.
func (tx Transaction) Failures() int {
	return tx.Replies - tx.Successes
}

// Age returns the number of ticks since the transaction was started.
func (tx Transaction) Age(now int64) int64 {
	return now - tx.CreatedAt
}
