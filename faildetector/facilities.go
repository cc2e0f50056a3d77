package faildetector

import (
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
)

// Sender delivers a message to a peer. Delivery is best effort.
type Sender interface {
	Send(to membership.PeerID, msg *message.Message)
}
