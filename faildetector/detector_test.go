package faildetector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
)

var (
	selfID       = membership.MustParsePeerID("10.0.0.1:7000")
	introducerID = membership.MustParsePeerID("10.0.0.2:7000")
	peerA        = membership.MustParsePeerID("10.0.0.3:7000")
	peerB        = membership.MustParsePeerID("10.0.0.4:7000")
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

func (s *fakeSender) ofKind(kind message.Kind) []sent {
	var out []sent

	for _, m := range s.sent {
		if m.msg.Kind == kind {
			out = append(out, m)
		}
	}

	return out
}

func (s *fakeSender) reset() {
	s.sent = nil
}

func newTestDetector(t *testing.T, self membership.PeerID, configure ...func(*Config)) (*Detector, *fakeSender, *oplog.Memory) {
	conf := DefaultConfig()
	conf.Self = self
	conf.Introducer = introducerID

	for _, f := range configure {
		f(conf)
	}

	sender := &fakeSender{}
	rec := oplog.NewMemory()

	d, err := New(conf, membership.NewTable(), sender, rec)
	require.NoError(t, err)

	return d, sender, rec
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]func(*Config){
		"RemoveEqualsFail": func(c *Config) { c.TRemove = c.TFail },
		"RemoveBelowFail":  func(c *Config) { c.TFail, c.TRemove = 10, 5 },
		"ZeroFail":         func(c *Config) { c.TFail = 0 },
		"NoSelf":           func(c *Config) { c.Self = membership.PeerID{} },
		"NoIntroducer":     func(c *Config) { c.Introducer = membership.PeerID{} },
		"NegativeRetries":  func(c *Config) { c.JoinRetries = -1 },
		"ZeroBackoff":      func(c *Config) { c.JoinBackoff = 0 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			conf := DefaultConfig()
			conf.Self = selfID
			conf.Introducer = introducerID
			mutate(conf)

			assert.ErrorIs(t, conf.Validate(), ErrInvalidConfig)
		})
	}
}

func TestJoin_Introducer(t *testing.T) {
	d, sender, _ := newTestDetector(t, introducerID)

	d.Join(0)

	assert.True(t, d.InGroup())
	assert.Empty(t, sender.sent)
	assert.Empty(t, d.Members())
}

func TestJoin_SendsRequest(t *testing.T) {
	d, sender, _ := newTestDetector(t, selfID)

	d.Join(0)

	assert.False(t, d.InGroup())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, introducerID, sender.sent[0].to)
	assert.Equal(t, message.KindJoinRequest, sender.sent[0].msg.Kind)
	assert.Equal(t, selfID, sender.sent[0].msg.From)
}

func TestJoin_RetriesWithBackoffAndGivesUp(t *testing.T) {
	d, sender, _ := newTestDetector(t, selfID, func(c *Config) {
		c.JoinRetries = 3
		c.JoinBackoff = 2
		c.JoinMaxBackoff = 4
	})

	d.Join(0)

	var sentAt []int64

	for now := int64(1); now <= 100; now++ {
		before := len(sender.sent)
		d.Tick(now)

		if len(sender.sent) > before {
			sentAt = append(sentAt, now)
		}
	}

	// Delays between attempts: 2, 4, 4, then give up after the last one.
	assert.Equal(t, []int64{2, 6, 10}, sentAt)
	assert.Len(t, sender.ofKind(message.KindJoinRequest), 4)
	assert.True(t, d.JoinFailed())
	assert.False(t, d.InGroup())
	assert.Equal(t, int64(0), d.Heartbeat())
}

func TestJoin_NoRetries(t *testing.T) {
	d, sender, _ := newTestDetector(t, selfID, func(c *Config) {
		c.JoinRetries = 0
	})

	d.Join(0)

	for now := int64(1); now <= 50; now++ {
		d.Tick(now)
	}

	assert.Len(t, sender.sent, 1)
	assert.True(t, d.JoinFailed())
}

func TestJoin_GossipAdmitsPendingNode(t *testing.T) {
	d, _, _ := newTestDetector(t, selfID)
	d.Join(0)

	d.HandleGossip(&message.Message{
		Kind:      message.KindGossip,
		From:      peerA,
		Heartbeat: 3,
		Now:       50,
	}, 1)

	assert.True(t, d.InGroup())
	assert.Equal(t, []membership.PeerID{peerA}, d.Members())
}

func TestHandleJoinRequest(t *testing.T) {
	d, sender, rec := newTestDetector(t, introducerID)
	d.Join(0)

	d.HandleJoinRequest(&message.Message{Kind: message.KindJoinRequest, From: peerA}, 3)
	d.HandleJoinRequest(&message.Message{Kind: message.KindJoinRequest, From: peerB}, 4)

	e, ok := d.table.Get(peerA)
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Heartbeat)
	assert.Equal(t, int64(3), e.LastUpdated)

	replies := sender.ofKind(message.KindJoinReply)
	require.Len(t, replies, 2)
	assert.Equal(t, peerB, replies[1].to)
	assert.Equal(t, int64(4), replies[1].msg.Now)
	assert.Len(t, replies[1].msg.Members, 2)

	assert.Len(t, rec.Filter(func(e oplog.Event) bool { return e.Type == oplog.EventNodeAdded }), 2)

	// A repeated request does not reset the entry.
	d.HandleJoinRequest(&message.Message{Kind: message.KindJoinRequest, From: peerA}, 9)
	e, _ = d.table.Get(peerA)
	assert.Equal(t, int64(3), e.LastUpdated)
}

func TestHandleJoinReply(t *testing.T) {
	d, _, rec := newTestDetector(t, selfID)
	d.Join(0)

	d.HandleJoinReply(&message.Message{
		Kind:      message.KindJoinReply,
		From:      introducerID,
		Heartbeat: 10,
		Now:       100,
		Members: []membership.Entry{
			{Peer: peerA, Heartbeat: 5, LastUpdated: 99},
			{Peer: selfID, Heartbeat: 1, LastUpdated: 100},
		},
	}, 2)

	assert.True(t, d.InGroup())
	assert.Equal(t, []membership.PeerID{introducerID, peerA}, d.Members())

	e, _ := d.table.Get(peerA)
	assert.Equal(t, int64(5), e.Heartbeat)
	assert.Equal(t, int64(1), e.LastUpdated, "age is rebased to the local clock")

	assert.Len(t, rec.Events(), 2)
}

func TestMerge_RejectsStaleUnknownEntries(t *testing.T) {
	d, _, _ := newTestDetector(t, introducerID)
	d.Join(0)

	d.HandleGossip(&message.Message{
		Kind: message.KindGossip,
		From: peerA,
		Now:  100,
		Members: []membership.Entry{
			{Peer: peerB, Heartbeat: 7, LastUpdated: 80},
		},
	}, 50)

	assert.False(t, d.table.Has(peerB))

	d.HandleGossip(&message.Message{
		Kind: message.KindGossip,
		From: peerA,
		Now:  100,
		Members: []membership.Entry{
			{Peer: peerB, Heartbeat: 7, LastUpdated: 81},
		},
	}, 50)

	e, ok := d.table.Get(peerB)
	require.True(t, ok)
	assert.Equal(t, int64(31), e.LastUpdated)
}

func TestMerge_AdoptsHigherHeartbeat(t *testing.T) {
	d, _, _ := newTestDetector(t, introducerID)
	d.Join(0)
	d.table.Insert(membership.Entry{Peer: peerB, Heartbeat: 5, LastUpdated: 1})

	gossip := func(hb, now int64) {
		d.HandleGossip(&message.Message{
			Kind:    message.KindGossip,
			From:    peerA,
			Now:     now,
			Members: []membership.Entry{{Peer: peerB, Heartbeat: hb, LastUpdated: now}},
		}, now)
	}

	gossip(4, 10)
	e, _ := d.table.Get(peerB)
	assert.Equal(t, int64(5), e.Heartbeat)
	assert.Equal(t, int64(1), e.LastUpdated)

	gossip(6, 12)
	e, _ = d.table.Get(peerB)
	assert.Equal(t, int64(6), e.Heartbeat)
	assert.Equal(t, int64(12), e.LastUpdated)
}

func TestMerge_DirectSenderIsForceIncremented(t *testing.T) {
	d, _, _ := newTestDetector(t, introducerID)
	d.Join(0)
	d.table.Insert(membership.Entry{Peer: peerA, Heartbeat: 10, LastUpdated: 1})

	d.HandleGossip(&message.Message{Kind: message.KindGossip, From: peerA, Heartbeat: 3}, 5)

	e, _ := d.table.Get(peerA)
	assert.Equal(t, int64(11), e.Heartbeat)
	assert.Equal(t, int64(5), e.LastUpdated)

	d.HandleGossip(&message.Message{Kind: message.KindGossip, From: peerA, Heartbeat: 20}, 6)

	e, _ = d.table.Get(peerA)
	assert.Equal(t, int64(20), e.Heartbeat)
	assert.Equal(t, int64(6), e.LastUpdated)
}

func TestTick_ExpiresSilentPeers(t *testing.T) {
	d, _, rec := newTestDetector(t, introducerID)
	d.Join(0)
	d.table.Insert(membership.Entry{Peer: peerA, Heartbeat: 1, LastUpdated: 0})

	for now := int64(1); now < 20; now++ {
		d.Tick(now)
		require.True(t, d.table.Has(peerA), "removed too early at %d", now)
	}

	d.Tick(20)
	assert.False(t, d.table.Has(peerA))
	assert.Equal(t, []membership.PeerID{peerA}, rec.Removed(introducerID))
	assert.Equal(t, int64(20), d.Heartbeat())
}

func TestTick_GossipsFreshEntriesToEveryone(t *testing.T) {
	d, sender, _ := newTestDetector(t, introducerID)
	d.Join(0)
	d.table.Insert(membership.Entry{Peer: peerA, Heartbeat: 1, LastUpdated: 10})
	d.table.Insert(membership.Entry{Peer: peerB, Heartbeat: 1, LastUpdated: 3})

	d.Tick(10)

	gossip := sender.ofKind(message.KindGossip)
	require.Len(t, gossip, 2)
	assert.Equal(t, peerA, gossip[0].to)
	assert.Equal(t, peerB, gossip[1].to)

	msg := gossip[0].msg
	assert.Equal(t, int64(1), msg.Heartbeat)
	assert.Equal(t, int64(10), msg.Now)
	require.Len(t, msg.Members, 1)
	assert.Equal(t, peerA, msg.Members[0].Peer)
}

func TestTick_Convergence(t *testing.T) {
	// Three detectors exchanging messages synchronously.
	ids := []membership.PeerID{introducerID, peerA, peerB}
	senders := map[membership.PeerID]*fakeSender{}
	detectors := map[membership.PeerID]*Detector{}

	for _, id := range ids {
		d, s, _ := newTestDetector(t, id)
		detectors[id] = d
		senders[id] = s
	}

	deliver := func(now int64) {
		for _, from := range ids {
			s := senders[from]
			pending := s.sent
			s.reset()

			for _, m := range pending {
				d := detectors[m.to]

				switch m.msg.Kind {
				case message.KindJoinRequest:
					d.HandleJoinRequest(m.msg, now)
				case message.KindJoinReply:
					d.HandleJoinReply(m.msg, now)
				case message.KindGossip:
					d.HandleGossip(m.msg, now)
				}
			}
		}
	}

	for _, id := range ids {
		detectors[id].Join(0)
	}

	for now := int64(1); now <= 10; now++ {
		deliver(now)

		for _, id := range ids {
			detectors[id].Tick(now)
		}
	}

	for _, id := range ids {
		assert.True(t, detectors[id].InGroup())
		assert.Len(t, detectors[id].Members(), 2, "node %s", id)
	}
}
