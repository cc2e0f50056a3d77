package replication

import (
	"errors"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication/consistency"
	"github.com/maxpoletaev/ringkv/ring"
	"github.com/maxpoletaev/ringkv/storage"
)

var (
	ErrNotEnoughReplicas = errors.New("not enough replicas")
	ErrEmptyKey          = errors.New("key must not be empty")
	ErrEmptyValue        = errors.New("value must not be empty")
)

// Outcome is the final state of a resolved transaction.
type Outcome struct {
	TxID    int64
	Kind    message.Kind
	Key     string
	Value   string
	Success bool
}

type Config struct {
	// Self is the identity of the local node.
	Self membership.PeerID

	// Timeout is the number of ticks a transaction may stay unresolved before
	// it is failed.
	Timeout int64

	// Level defines how many successful replies resolve a transaction.
	Level consistency.Level

	// IDs allocates transaction ids. A private counter is used when not set.
	IDs IDAllocator

	// OnResolve, if set, is called with the outcome of every transaction
	// coordinated by this node.
	OnResolve func(Outcome)

	Recorder oplog.Recorder
	Logger   log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:  10,
		Level:    consistency.Quorum,
		Recorder: oplog.Nop{},
		Logger:   log.NewNopLogger(),
	}
}

// Coordinator fans client requests out to the replicas of a key and
// aggregates their replies. It also serves the requests of other
// coordinators against the local storage. Not safe for concurrent use.
type Coordinator struct {
	self      membership.PeerID
	conf      Config
	placement Placement
	store     storage.Engine
	sender    Sender
	ids       IDAllocator
	recorder  oplog.Recorder
	logger    log.Logger
	pending   map[int64]Transaction

	needSuccesses int
	maxFailures   int
}

func NewCoordinator(conf *Config, placement Placement, store storage.Engine, sender Sender) *Coordinator {
	ids := conf.IDs
	if ids == nil {
		ids = NewCounter()
	}

	recorder := conf.Recorder
	if recorder == nil {
		recorder = oplog.Nop{}
	}

	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Coordinator{
		self:          conf.Self,
		conf:          *conf,
		placement:     placement,
		store:         store,
		sender:        sender,
		ids:           ids,
		recorder:      recorder,
		logger:        log.With(logger, "component", "coordinator"),
		pending:       make(map[int64]Transaction),
		needSuccesses: conf.Level.N(ring.ReplicationFactor),
		maxFailures:   conf.Level.Failures(ring.ReplicationFactor),
	}
}

// Create stores a new key on its replicas.
func (c *Coordinator) Create(key, value string, now int64) (int64, error) {
	if value == "" {
		return 0, ErrEmptyValue
	}

	return c.start(message.KindCreate, key, value, now)
}

// Read fetches the value of the key from its replicas.
func (c *Coordinator) Read(key string, now int64) (int64, error) {
	return c.start(message.KindRead, key, "", now)
}

// Update overwrites the value of an existing key on its replicas.
func (c *Coordinator) Update(key, value string, now int64) (int64, error) {
	if value == "" {
		return 0, ErrEmptyValue
	}

	return c.start(message.KindUpdate, key, value, now)
}

// Delete removes the key from its replicas.
func (c *Coordinator) Delete(key string, now int64) (int64, error) {
	return c.start(message.KindDelete, key, "", now)
}

func (c *Coordinator) start(kind message.Kind, key, value string, now int64) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	replicas := c.placement.ReplicasFor(key)
	if len(replicas) == 0 {
		return 0, ErrNotEnoughReplicas
	}

	tx := Transaction{
		ID:        c.ids.NextID(),
		Kind:      kind,
		Key:       key,
		Value:     value,
		CreatedAt: now,
	}

	c.pending[tx.ID] = tx

	msg := &message.Message{
		Kind: kind,
		From: c.self,
		TxID: tx.ID,
		Key:  key,
	}

	if kind == message.KindCreate || kind == message.KindUpdate {
		msg.Value = value
	}

	for _, replica := range replicas {
		c.sender.Send(replica.Peer, msg)
	}

	level.Debug(c.logger).Log(
		"msg", "transaction started",
		"tx_id", tx.ID,
		"kind", kind,
		"key", key,
		"replicas", len(replicas),
	)

	return tx.ID, nil
}

// Pending returns the number of unresolved transactions.
func (c *Coordinator) Pending() int {
	return len(c.pending)
}

// Transaction returns an unresolved transaction by id.
func (c *Coordinator) Transaction(id int64) (Transaction, bool) {
	tx, ok := c.pending[id]
	return tx, ok
}

// HandleReply counts a reply to a create, update or delete request.
func (c *Coordinator) HandleReply(msg *message.Message, now int64) {
	c.countReply(msg, msg.Success, "", now)
}

// HandleReadReply counts a reply to a read request. A non-empty value is a
// successful read.
func (c *Coordinator) HandleReadReply(msg *message.Message, now int64) {
	c.countReply(msg, msg.Value != "", msg.Value, now)
}

func (c *Coordinator) countReply(msg *message.Message, success bool, value string, now int64) {
	id := msg.TxID

	tx, ok := c.pending[id]
	if !ok {
		level.Debug(c.logger).Log("msg", "reply for unknown transaction", "tx_id", id)
		return
	}

	if tx.HasReplied(msg.From) {
		level.Debug(c.logger).Log("msg", "duplicate reply", "tx_id", id, "from", msg.From)
		return
	}

	tx.Replies++
	tx.Responders = append(tx.Responders, msg.From)

	if success {
		tx.Successes++

		if value != "" {
			tx.Value = value
		}
	}

	c.pending[id] = tx
	c.decide(tx, now)
}

// Sweep fails every transaction that has been waiting for longer than the
// timeout.
func (c *Coordinator) Sweep(now int64) {
	ids := maps.Keys(c.pending)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c.decide(c.pending[id], now)
	}
}

func (c *Coordinator) decide(tx Transaction, now int64) {
	switch {
	case tx.Successes >= c.needSuccesses:
		c.resolve(tx, true)
	case tx.Failures() >= c.maxFailures:
		c.resolve(tx, false)
	case tx.Replies >= ring.ReplicationFactor:
		c.resolve(tx, tx.Successes >= c.needSuccesses)
	case tx.Age(now) > c.conf.Timeout:
		level.Debug(c.logger).Log("msg", "transaction timed out", "tx_id", tx.ID, "replies", tx.Replies)
		c.resolve(tx, false)
	}
}

// resolve is the only place a transaction leaves the pending set.
func (c *Coordinator) resolve(tx Transaction, success bool) {
	delete(c.pending, tx.ID)

	value := tx.Value
	if tx.Kind == message.KindRead && !success {
		value = ""
	}

	c.recorder.Operation(c.self, oplog.Op{
		Kind:        tx.Kind,
		TxID:        tx.ID,
		Key:         tx.Key,
		Value:       value,
		Success:     success,
		Coordinator: true,
	})

	if c.conf.OnResolve != nil {
		c.conf.OnResolve(Outcome{
			TxID:    tx.ID,
			Kind:    tx.Kind,
			Key:     tx.Key,
			Value:   value,
			Success: success,
		})
	}
}
