package message

import (
	"fmt"

	"github.com/maxpoletaev/ringkv/membership"
)

// StabilizationTxID tags Create messages sent while re-replicating keys
// after a ring change. Replicas neither reply to them nor record them.
const StabilizationTxID int64 = -1

// Kind is the type of a message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindJoinRequest
	KindJoinReply
	KindGossip
	KindCreate
	KindRead
	KindUpdate
	KindDelete
	KindReply
	KindReadReply
)

func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "join_request"
	case KindJoinReply:
		return "join_reply"
	case KindGossip:
		return "gossip"
	case KindCreate:
		return "create"
	case KindRead:
		return "read"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindReply:
		return "reply"
	case KindReadReply:
		return "read_reply"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether the kind is one of the known message kinds.
func (k Kind) Valid() bool {
	return k >= KindJoinRequest && k <= KindReadReply
}

// IsRequest reports whether the kind is a key/value request handled by a replica.
func (k Kind) IsRequest() bool {
	switch k {
	case KindCreate, KindRead, KindUpdate, KindDelete:
		return true
	default:
		return false
	}
}

// Message is the single envelope exchanged between nodes. Which fields are
// meaningful depends on Kind:
//
//	JoinRequest: From, Heartbeat
//	JoinReply:   From, Heartbeat, Now, Members
//	Gossip:      From, Heartbeat, Now, Members
//	Create:      From, TxID, Key, Value
//	Read:        From, TxID, Key
//	Update:      From, TxID, Key, Value
//	Delete:      From, TxID, Key
//	Reply:       From, TxID, Success
//	ReadReply:   From, TxID, Value
type Message struct {
	Kind Kind
	From membership.PeerID

	Heartbeat int64
	Now       int64
	Members   []membership.Entry

	TxID    int64
	Key     string
	Value   string
	Success bool
}

// IsStabilization reports whether a request belongs to the re-replication
// following a ring change.
func (m *Message) IsStabilization() bool {
	return m.TxID == StabilizationTxID
}
