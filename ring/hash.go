package ring

import (
	"github.com/twmb/murmur3"

	"github.com/maxpoletaev/ringkv/membership"
)

// Size is the number of positions on the ring.
const Size uint64 = 1 << 32

// Hash maps arbitrary bytes to a ring position. It is unsalted, so every node
// computes the same position for the same input.
func Hash(b []byte) uint64 {
	return murmur3.Sum64(b) % Size
}

// HashKey returns the position of a key.
func HashKey(key string) uint64 {
	return Hash([]byte(key))
}

// HashPeer returns the position of a peer, derived from its packed address.
func HashPeer(peer membership.PeerID) uint64 {
	return Hash(peer.Bytes())
}
