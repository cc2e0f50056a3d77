package replication

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/ring"
	"github.com/maxpoletaev/ringkv/storage"
)

type StabilizerConfig struct {
	Self membership.PeerID

	// GCDelay is the number of ticks the ring must stay unchanged before keys
	// this node no longer replicates are deleted. Zero disables collection.
	GCDelay int64

	Logger log.Logger
}

// Stabilizer re-replicates the local keys when the ring changes, and later
// drops the keys the node is no longer responsible for.
type Stabilizer struct {
	self    membership.PeerID
	store   storage.Engine
	sender  Sender
	logger  log.Logger
	gcDelay int64

	changedAt int64
	gcPending bool
}

func NewStabilizer(conf *StabilizerConfig, store storage.Engine, sender Sender) *Stabilizer {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Stabilizer{
		self:    conf.Self,
		store:   store,
		sender:  sender,
		logger:  log.With(logger, "component", "stabilizer"),
		gcDelay: conf.GCDelay,
	}
}

// OnRingChange pushes every local key to all of its replicas under the new
// ring. Replicas that already hold the key ignore the push.
func (s *Stabilizer) OnRingChange(r *ring.Ring, now int64) {
	s.changedAt = now
	s.gcPending = s.gcDelay > 0

	if r.Len() < ring.ReplicationFactor {
		return
	}

	pushed := 0

	for it := s.store.Scan(); it.HasNext(); {
		key, value := it.Next()

		for _, replica := range r.ReplicasFor(key) {
			s.sender.Send(replica.Peer, &message.Message{
				Kind:  message.KindCreate,
				From:  s.self,
				TxID:  message.StabilizationTxID,
				Key:   key,
				Value: value,
			})

			pushed++
		}
	}

	level.Debug(s.logger).Log(
		"msg", "ring changed, keys re-replicated",
		"nodes", r.Len(),
		"keys", s.store.Len(),
		"messages", pushed,
	)
}

// Collect deletes the local keys the node is not a replica of, once the ring
// has been stable for the configured delay after the last change. It runs
// once per change and returns the number of deleted keys.
func (s *Stabilizer) Collect(r *ring.Ring, now int64) int {
	if !s.gcPending || now-s.changedAt < s.gcDelay {
		return 0
	}

	s.gcPending = false

	// Without a full replica set ownership is undefined.
	if r.Len() < ring.ReplicationFactor {
		return 0
	}

	var stale []string

	for _, key := range storage.Keys(s.store) {
		if !r.IsReplica(s.self, key) {
			stale = append(stale, key)
		}
	}

	for _, key := range stale {
		s.store.Delete(key)
		level.Debug(s.logger).Log("msg", "dropped key no longer owned", "key", key)
	}

	if len(stale) > 0 {
		level.Info(s.logger).Log("msg", "garbage collected keys", "count", len(stale))
	}

	return len(stale)
}
