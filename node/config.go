package node

import (
	"github.com/go-kit/log"

	"github.com/maxpoletaev/ringkv/faildetector"
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication"
	"github.com/maxpoletaev/ringkv/replication/consistency"
)

type Config struct {
	// Self is the address the node is reachable at. Peers identify the node
	// by it.
	Self membership.PeerID

	// Introducer is the node contacted to join the group. A node that is its
	// own introducer starts a new group.
	Introducer membership.PeerID

	// Epoch is the logical time the clock of the node starts at.
	Epoch int64

	// Failure detector timing, in ticks.
	TFail          int64
	TRemove        int64
	JoinRetries    int
	JoinBackoff    int64
	JoinMaxBackoff int64

	// Timeout is the number of ticks a client request may wait for replies.
	Timeout int64

	// Level is the number of replicas that must acknowledge a request.
	Level consistency.Level

	// GCDelay is the number of ticks of ring stability after which keys the
	// node no longer replicates are dropped. Zero disables the collection.
	GCDelay int64

	// IDs allocates transaction ids. Share one allocator between nodes of
	// the same process to get ids unique across them.
	IDs replication.IDAllocator

	// OnResolve, if set, is called with the outcome of every request this
	// node coordinates.
	OnResolve func(replication.Outcome)

	Recorder oplog.Recorder
	Logger   log.Logger
}

func DefaultConfig() *Config {
	fd := faildetector.DefaultConfig()
	rep := replication.DefaultConfig()

	return &Config{
		TFail:          fd.TFail,
		TRemove:        fd.TRemove,
		JoinRetries:    fd.JoinRetries,
		JoinBackoff:    fd.JoinBackoff,
		JoinMaxBackoff: fd.JoinMaxBackoff,
		Timeout:        rep.Timeout,
		Level:          rep.Level,
		GCDelay:        2 * fd.TRemove,
		Recorder:       oplog.Nop{},
		Logger:         log.NewNopLogger(),
	}
}

func (c *Config) detectorConfig(logger log.Logger) *faildetector.Config {
	return &faildetector.Config{
		Self:           c.Self,
		Introducer:     c.Introducer,
		TFail:          c.TFail,
		TRemove:        c.TRemove,
		JoinRetries:    c.JoinRetries,
		JoinBackoff:    c.JoinBackoff,
		JoinMaxBackoff: c.JoinMaxBackoff,
		Logger:         logger,
	}
}

// Validate checks the settings of the failure detector, which are the only
// ones with invariants across fields.
func (c *Config) Validate() error {
	return c.detectorConfig(nil).Validate()
}
