package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
	"github.com/maxpoletaev/ringkv/replication/consistency"
	"github.com/maxpoletaev/ringkv/ring"
	"github.com/maxpoletaev/ringkv/storage/inmemory"
)

var (
	n1 = membership.MustParsePeerID("10.0.0.1:7000")
	n2 = membership.MustParsePeerID("10.0.0.2:7000")
	n3 = membership.MustParsePeerID("10.0.0.3:7000")
	n4 = membership.MustParsePeerID("10.0.0.4:7000")
)

type sent struct {
	to  membership.PeerID
	msg *message.Message
}

type fakeSender struct {
	sent []sent
}

func (s *fakeSender) Send(to membership.PeerID, msg *message.Message) {
	s.sent = append(s.sent, sent{to: to, msg: msg})
}

func (s *fakeSender) recipients() []membership.PeerID {
	peers := make([]membership.PeerID, len(s.sent))
	for i := range s.sent {
		peers[i] = s.sent[i].to
	}

	return peers
}

type fixedPlacement []ring.Node

func (p fixedPlacement) ReplicasFor(string) []ring.Node {
	return p
}

var threeReplicas = fixedPlacement{{Peer: n1}, {Peer: n2}, {Peer: n3}}

type testCoordinator struct {
	*Coordinator
	sender   *fakeSender
	store    *inmemory.Engine
	recorder *oplog.Memory
	outcomes []Outcome
}

func newTestCoordinator(placement Placement, configure ...func(*Config)) *testCoordinator {
	tc := &testCoordinator{
		sender:   &fakeSender{},
		store:    inmemory.New(),
		recorder: oplog.NewMemory(),
	}

	conf := DefaultConfig()
	conf.Self = n1
	conf.Recorder = tc.recorder
	conf.OnResolve = func(o Outcome) { tc.outcomes = append(tc.outcomes, o) }

	for _, f := range configure {
		f(conf)
	}

	tc.Coordinator = NewCoordinator(conf, placement, tc.store, tc.sender)

	return tc
}

func reply(from membership.PeerID, id int64, success bool) *message.Message {
	return &message.Message{Kind: message.KindReply, From: from, TxID: id, Success: success}
}

func TestCreate_FansOutToReplicas(t *testing.T) {
	c := newTestCoordinator(threeReplicas)

	id, err := c.Create("k", "v", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	assert.Equal(t, []membership.PeerID{n1, n2, n3}, c.sender.recipients())

	for _, s := range c.sender.sent {
		assert.Equal(t, message.KindCreate, s.msg.Kind)
		assert.Equal(t, "k", s.msg.Key)
		assert.Equal(t, "v", s.msg.Value)
		assert.Equal(t, id, s.msg.TxID)
		assert.Equal(t, n1, s.msg.From)
	}

	assert.Equal(t, 1, c.Pending())
}

func TestReadDelete_CarryNoValue(t *testing.T) {
	c := newTestCoordinator(threeReplicas)

	_, err := c.Read("k", 0)
	require.NoError(t, err)
	_, err = c.Delete("k", 0)
	require.NoError(t, err)

	for _, s := range c.sender.sent {
		assert.Empty(t, s.msg.Value)
	}
}

func TestStart_Preconditions(t *testing.T) {
	c := newTestCoordinator(fixedPlacement(nil))

	_, err := c.Create("k", "v", 0)
	assert.ErrorIs(t, err, ErrNotEnoughReplicas)

	c = newTestCoordinator(threeReplicas)

	_, err = c.Read("", 0)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = c.Create("k", "", 0)
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = c.Update("k", "", 0)
	assert.ErrorIs(t, err, ErrEmptyValue)

	assert.Empty(t, c.sender.sent)
	assert.Equal(t, 0, c.Pending())
}

func TestIDs_SharedAllocator(t *testing.T) {
	ids := NewCounter()
	a := newTestCoordinator(threeReplicas, func(c *Config) { c.IDs = ids })
	b := newTestCoordinator(threeReplicas, func(c *Config) { c.IDs = ids })

	id1, _ := a.Create("k", "v", 0)
	id2, _ := b.Create("k", "v", 0)
	id3, _ := a.Read("k", 0)

	assert.Equal(t, []int64{1, 2, 3}, []int64{id1, id2, id3})
}

func TestQuorum_Decisions(t *testing.T) {
	tests := map[string]struct {
		replies      []bool
		wantResolved bool
		wantSuccess  bool
		wantAfter    int
	}{
		"TwoSuccesses":            {replies: []bool{true, true}, wantResolved: true, wantSuccess: true, wantAfter: 2},
		"TwoFailuresShortCircuit": {replies: []bool{false, false}, wantResolved: true, wantSuccess: false, wantAfter: 2},
		"SuccessFailSuccess":      {replies: []bool{true, false, true}, wantResolved: true, wantSuccess: true, wantAfter: 3},
		"FailSuccessSuccess":      {replies: []bool{false, true, true}, wantResolved: true, wantSuccess: true, wantAfter: 3},
		"SuccessFailFail":         {replies: []bool{true, false, false}, wantResolved: true, wantSuccess: false, wantAfter: 3},
		"OneSuccess":              {replies: []bool{true}, wantResolved: false},
		"OneFailure":              {replies: []bool{false}, wantResolved: false},
		"SuccessAndFailure":       {replies: []bool{true, false}, wantResolved: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestCoordinator(threeReplicas)
			id, err := c.Update("k", "v", 0)
			require.NoError(t, err)

			peers := []membership.PeerID{n1, n2, n3}
			for i, success := range tt.replies {
				c.HandleReply(reply(peers[i], id, success), 1)

				if tt.wantResolved && i+1 < tt.wantAfter {
					require.Empty(t, c.outcomes, "resolved too early after %d replies", i+1)
				}
			}

			if !tt.wantResolved {
				assert.Empty(t, c.outcomes)
				assert.Equal(t, 1, c.Pending())

				return
			}

			require.Len(t, c.outcomes, 1)
			assert.Equal(t, tt.wantSuccess, c.outcomes[0].Success)
			assert.Equal(t, 0, c.Pending())
		})
	}
}

func TestQuorum_LateRepliesIgnored(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	id, _ := c.Create("k", "v", 0)

	c.HandleReply(reply(n1, id, true), 1)
	c.HandleReply(reply(n3, id, true), 1)
	c.HandleReply(reply(n2, id, false), 2)
	c.HandleReply(reply(n2, id, true), 2)
	c.HandleReply(reply(n2, 999, true), 2)

	ops := c.recorder.CoordinatorOps()
	require.Len(t, ops, 1)
	assert.Equal(t, oplog.Op{
		Kind:        message.KindCreate,
		TxID:        id,
		Key:         "k",
		Value:       "v",
		Success:     true,
		Coordinator: true,
	}, ops[0])
}

func TestQuorum_Timeout(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	id, _ := c.Delete("k", 5)
	c.HandleReply(reply(n1, id, true), 6)

	c.Sweep(15)
	assert.Equal(t, 1, c.Pending(), "age of exactly the timeout is not expired")

	c.Sweep(16)
	assert.Equal(t, 0, c.Pending())
	require.Len(t, c.outcomes, 1)
	assert.False(t, c.outcomes[0].Success)

	c.HandleReply(reply(n2, id, true), 17)
	assert.Len(t, c.outcomes, 1)
}

func TestQuorum_ReadReply(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	id, _ := c.Read("k", 0)

	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n2, TxID: id}, 1)

	tx, ok := c.Transaction(id)
	require.True(t, ok)
	assert.Equal(t, 1, tx.Replies)
	assert.Equal(t, 0, tx.Successes)

	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n1, TxID: id, Value: "v"}, 1)
	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n3, TxID: id, Value: "v"}, 1)

	require.Len(t, c.outcomes, 1)
	assert.True(t, c.outcomes[0].Success)
	assert.Equal(t, "v", c.outcomes[0].Value)
}

func TestQuorum_FailedReadHasNoValue(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	id, _ := c.Read("k", 0)

	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n1, TxID: id, Value: "stale"}, 1)
	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n2, TxID: id}, 1)
	c.HandleReadReply(&message.Message{Kind: message.KindReadReply, From: n3, TxID: id}, 1)

	require.Len(t, c.outcomes, 1)
	assert.False(t, c.outcomes[0].Success)
	assert.Empty(t, c.outcomes[0].Value)
}

func TestQuorum_LevelAll(t *testing.T) {
	c := newTestCoordinator(threeReplicas, func(c *Config) { c.Level = consistency.All })
	id, _ := c.Create("k", "v", 0)

	c.HandleReply(reply(n1, id, true), 1)
	c.HandleReply(reply(n2, id, true), 1)
	assert.Empty(t, c.outcomes)

	c.HandleReply(reply(n3, id, false), 1)
	require.Len(t, c.outcomes, 1)
	assert.False(t, c.outcomes[0].Success)
}

func TestHandlers_ServeAndReply(t *testing.T) {
	c := newTestCoordinator(threeReplicas)

	c.HandleCreate(&message.Message{Kind: message.KindCreate, From: n2, TxID: 4, Key: "k", Value: "v"})
	c.HandleCreate(&message.Message{Kind: message.KindCreate, From: n2, TxID: 5, Key: "k", Value: "other"})
	c.HandleRead(&message.Message{Kind: message.KindRead, From: n3, TxID: 6, Key: "k"})
	c.HandleUpdate(&message.Message{Kind: message.KindUpdate, From: n2, TxID: 7, Key: "missing", Value: "v"})
	c.HandleDelete(&message.Message{Kind: message.KindDelete, From: n2, TxID: 8, Key: "k"})

	replies := c.sender.sent
	require.Len(t, replies, 5)

	assert.Equal(t, &message.Message{Kind: message.KindReply, From: n1, TxID: 4, Success: true}, replies[0].msg)
	assert.Equal(t, n2, replies[0].to)
	assert.False(t, replies[1].msg.Success)
	assert.Equal(t, &message.Message{Kind: message.KindReadReply, From: n1, TxID: 6, Value: "v", Success: true}, replies[2].msg)
	assert.Equal(t, n3, replies[2].to)
	assert.False(t, replies[3].msg.Success)
	assert.True(t, replies[4].msg.Success)

	_, found := c.store.Read("k")
	assert.False(t, found)

	events := c.recorder.Events()
	require.Len(t, events, 5)
	assert.False(t, events[0].Op.Coordinator)
	assert.Equal(t, "v", events[2].Op.Value)
}

func TestHandlers_StabilizationIsSilent(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	c.store.Create("k", "original")

	c.HandleCreate(&message.Message{
		Kind:  message.KindCreate,
		From:  n2,
		TxID:  message.StabilizationTxID,
		Key:   "k",
		Value: "pushed",
	})

	c.HandleCreate(&message.Message{
		Kind:  message.KindCreate,
		From:  n2,
		TxID:  message.StabilizationTxID,
		Key:   "new",
		Value: "pushed",
	})

	assert.Empty(t, c.sender.sent)
	assert.Empty(t, c.recorder.Events())

	value, _ := c.store.Read("k")
	assert.Equal(t, "original", value)

	value, _ = c.store.Read("new")
	assert.Equal(t, "pushed", value)
}

// The create scenario: N2 fails to store the key, N1 and N3 succeed.
func TestCreate_OneFailingReplica(t *testing.T) {
	stores := map[membership.PeerID]*testCoordinator{}
	for _, id := range []membership.PeerID{n1, n2, n3} {
		self := id
		stores[id] = newTestCoordinator(threeReplicas, func(c *Config) { c.Self = self })
	}

	// N2 already holds a conflicting value.
	stores[n2].store.Create("k", "conflict")

	coordinator := stores[n1]
	id, err := coordinator.Create("k", "v", 0)
	require.NoError(t, err)

	for _, s := range coordinator.sender.sent {
		stores[s.to].HandleCreate(s.msg)
	}

	for _, peer := range []membership.PeerID{n1, n3, n2} {
		for _, s := range stores[peer].sender.sent {
			if s.msg.Kind == message.KindReply {
				coordinator.HandleReply(s.msg, 1)
			}
		}
	}

	require.Len(t, coordinator.outcomes, 1)
	assert.Equal(t, id, coordinator.outcomes[0].TxID)
	assert.True(t, coordinator.outcomes[0].Success)

	for _, peer := range []membership.PeerID{n1, n3} {
		value, ok := stores[peer].store.Read("k")
		assert.True(t, ok)
		assert.Equal(t, "v", value)
	}
}

func TestQuorum_DuplicateRepliesCountOnce(t *testing.T) {
	c := newTestCoordinator(threeReplicas)
	id, _ := c.Create("k", "v", 0)

	c.HandleReply(reply(n2, id, true), 1)
	c.HandleReply(reply(n2, id, true), 1)

	tx, ok := c.Transaction(id)
	require.True(t, ok)
	assert.Equal(t, 1, tx.Replies)
	assert.True(t, tx.HasReplied(n2))
	assert.Empty(t, c.outcomes)

	c.HandleReply(reply(n3, id, true), 1)
	require.Len(t, c.outcomes, 1)
	assert.True(t, c.outcomes[0].Success)
}
