package faildetector

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"

	"github.com/maxpoletaev/ringkv/membership"
)

var ErrInvalidConfig = errors.New("invalid failure detector config")

type Config struct {
	// Self is the identity of the local node. It is attached to every message.
	Self membership.PeerID

	// Introducer is the node contacted to join the group. The node that is its
	// own introducer starts a new group.
	Introducer membership.PeerID

	// TFail is the number of ticks after which a silent peer is no longer
	// gossiped about as alive. It is still gossiped to until it is removed.
	TFail int64

	// TRemove is the number of ticks after which a silent peer is removed from
	// the table. Must be greater than TFail.
	TRemove int64

	// JoinRetries is how many times the join request is re-sent before the
	// node gives up and stays out of the group.
	JoinRetries int

	// JoinBackoff is the number of ticks to wait for a join reply before the
	// first retry. The delay doubles on every retry up to JoinMaxBackoff.
	JoinBackoff    int64
	JoinMaxBackoff int64

	// Logger is used to record protocol events. Silent when not provided.
	Logger log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		TFail:          5,
		TRemove:        20,
		JoinRetries:    5,
		JoinBackoff:    5,
		JoinMaxBackoff: 40,
		Logger:         log.NewNopLogger(),
	}
}

func (c *Config) Validate() error {
	if c.Self.IsZero() {
		return fmt.Errorf("%w: self is not set", ErrInvalidConfig)
	}

	if c.Introducer.IsZero() {
		return fmt.Errorf("%w: introducer is not set", ErrInvalidConfig)
	}

	if c.TFail <= 0 || c.TRemove <= c.TFail {
		return fmt.Errorf("%w: need 0 < TFail < TRemove, got %d and %d", ErrInvalidConfig, c.TFail, c.TRemove)
	}

	if c.JoinRetries < 0 || c.JoinBackoff <= 0 || c.JoinMaxBackoff < c.JoinBackoff {
		return fmt.Errorf("%w: invalid join retry policy", ErrInvalidConfig)
	}

	return nil
}
