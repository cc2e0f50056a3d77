package faildetector

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/internal/backoff"
	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/message"
	"github.com/maxpoletaev/ringkv/oplog"
)

// Detector is a heartbeat failure detector. Every tick it increments the
// local heartbeat, drops peers it has not heard from for TRemove ticks, and
// gossips its view of the group to every peer it still knows. It is driven
// by a single goroutine and is not safe for concurrent use.
type Detector struct {
	self     membership.PeerID
	conf     Config
	table    *membership.Table
	sender   Sender
	recorder oplog.Recorder
	logger   log.Logger

	heartbeat int64
	inGroup   bool

	joining     bool
	joinFailed  bool
	joinRetry   *backoff.Backoff
	nextJoinAt  int64
	joinRetries int
}

func New(conf *Config, table *membership.Table, sender Sender, recorder oplog.Recorder) (*Detector, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	if recorder == nil {
		recorder = oplog.Nop{}
	}

	return &Detector{
		self:      conf.Self,
		conf:      *conf,
		table:     table,
		sender:    sender,
		recorder:  recorder,
		logger:    log.With(logger, "component", "faildetector"),
		joinRetry: backoff.New(conf.JoinRetries+1, conf.JoinBackoff, conf.JoinMaxBackoff),
	}, nil
}

// Heartbeat returns the local heartbeat counter.
func (d *Detector) Heartbeat() int64 {
	return d.heartbeat
}

// InGroup reports whether the node has been admitted to the group.
func (d *Detector) InGroup() bool {
	return d.inGroup
}

// JoinFailed reports whether the node gave up waiting for a join reply.
func (d *Detector) JoinFailed() bool {
	return d.joinFailed
}

// Members returns the peers currently in the membership table.
func (d *Detector) Members() []membership.PeerID {
	return d.table.Peers()
}

// Entries returns a copy of the membership table.
func (d *Detector) Entries() []membership.Entry {
	return d.table.Entries()
}

// Join starts the group membership. The introducer forms a new group on
// its own, every other node asks the introducer to let it in.
func (d *Detector) Join(now int64) {
	if d.inGroup || d.joining {
		return
	}

	if d.self == d.conf.Introducer {
		level.Info(d.logger).Log("msg", "starting up a new group", "self", d.self)
		d.inGroup = true

		return
	}

	d.joining = true
	d.sendJoinRequest(now)
}

func (d *Detector) sendJoinRequest(now int64) {
	delay, _ := d.joinRetry.Next()
	d.nextJoinAt = now + delay

	level.Debug(d.logger).Log(
		"msg", "sending join request",
		"introducer", d.conf.Introducer,
		"attempt", d.joinRetry.Attempts(),
	)

	d.sender.Send(d.conf.Introducer, &message.Message{
		Kind:      message.KindJoinRequest,
		From:      d.self,
		Heartbeat: d.heartbeat,
	})
}

// retryJoin re-sends the join request once the backoff delay has passed and
// gives up once all retries are used.
func (d *Detector) retryJoin(now int64) {
	if !d.joining || now < d.nextJoinAt {
		return
	}

	if d.joinRetry.Exhausted() {
		level.Error(d.logger).Log(
			"msg", "failed to join the group, giving up",
			"introducer", d.conf.Introducer,
			"retries", d.joinRetries,
		)

		d.joining = false
		d.joinFailed = true

		return
	}

	d.joinRetries++
	d.sendJoinRequest(now)
}

func (d *Detector) admit(via message.Kind) {
	if d.inGroup {
		return
	}

	level.Info(d.logger).Log("msg", "joined the group", "via", via)

	d.inGroup = true
	d.joining = false
	d.joinFailed = false
}

// HandleJoinRequest adds the sender to the table and replies with the
// current view of the group.
func (d *Detector) HandleJoinRequest(msg *message.Message, now int64) {
	if msg.From == d.self {
		return
	}

	added := d.table.Insert(membership.Entry{
		Peer:        msg.From,
		Heartbeat:   1,
		LastUpdated: now,
	})

	if added {
		d.recorder.NodeAdded(d.self, msg.From)
	}

	d.sender.Send(msg.From, &message.Message{
		Kind:      message.KindJoinReply,
		From:      d.self,
		Heartbeat: d.heartbeat,
		Now:       now,
		Members:   d.table.Fresh(now, d.conf.TFail),
	})
}

// HandleJoinReply merges the introducer's view and admits the node.
func (d *Detector) HandleJoinReply(msg *message.Message, now int64) {
	d.admit(msg.Kind)
	d.merge(msg, now)
}

// HandleGossip merges the sender and every entry it reported. Gossip
// arriving while the join is still pending means the group already knows
// about this node, so it is admitted as well.
func (d *Detector) HandleGossip(msg *message.Message, now int64) {
	d.admit(msg.Kind)
	d.merge(msg, now)
}

func (d *Detector) merge(msg *message.Message, now int64) {
	if msg.From == d.self {
		return
	}

	d.mergeSender(msg.From, msg.Heartbeat, now)

	for _, remote := range msg.Members {
		if remote.Peer == d.self || remote.Peer == msg.From || remote.Peer.IsZero() {
			continue
		}

		d.mergeEntry(remote, msg.Now, now)
	}
}

// mergeSender records that the peer was heard from directly, which proves it
// is alive even if its reported heartbeat is not ahead of ours.
func (d *Detector) mergeSender(peer membership.PeerID, heartbeat, now int64) {
	local, ok := d.table.Get(peer)
	if !ok {
		if heartbeat < 1 {
			heartbeat = 1
		}

		d.table.Insert(membership.Entry{Peer: peer, Heartbeat: heartbeat, LastUpdated: now})
		d.recorder.NodeAdded(d.self, peer)

		return
	}

	if heartbeat <= local.Heartbeat {
		heartbeat = local.Heartbeat + 1
	}

	d.table.Refresh(peer, heartbeat, now)
}

// mergeEntry applies a second-hand report about a peer. Age of the remote
// entry is measured against the clock of the node that sent it.
func (d *Detector) mergeEntry(remote membership.Entry, remoteNow, now int64) {
	local, ok := d.table.Get(remote.Peer)
	if ok {
		if remote.Heartbeat > local.Heartbeat {
			d.table.Refresh(remote.Peer, remote.Heartbeat, now)
		}

		return
	}

	age := remote.Age(remoteNow)
	if age < 0 {
		age = 0
	}

	if age >= d.conf.TRemove {
		return
	}

	lastUpdated := now - age
	if lastUpdated < 0 {
		lastUpdated = 0
	}

	d.table.Insert(membership.Entry{
		Peer:        remote.Peer,
		Heartbeat:   remote.Heartbeat,
		LastUpdated: lastUpdated,
	})

	d.recorder.NodeAdded(d.self, remote.Peer)
}

// Tick advances the detector by one tick. Out of the group, it only retries
// the pending join.
func (d *Detector) Tick(now int64) {
	if !d.inGroup {
		d.retryJoin(now)
		return
	}

	d.heartbeat++
	d.sweep(now)
	d.gossip(now)
}

func (d *Detector) sweep(now int64) {
	for _, e := range d.table.Expired(now, d.conf.TRemove) {
		d.table.Remove(e.Peer)
		d.recorder.NodeRemoved(d.self, e.Peer)

		level.Debug(d.logger).Log(
			"msg", "peer removed",
			"peer", e.Peer,
			"heartbeat", e.Heartbeat,
			"silent_for", e.Age(now),
		)
	}
}

func (d *Detector) gossip(now int64) {
	peers := d.table.Peers()
	if len(peers) == 0 {
		return
	}

	msg := &message.Message{
		Kind:      message.KindGossip,
		From:      d.self,
		Heartbeat: d.heartbeat,
		Now:       now,
		Members:   d.table.Fresh(now, d.conf.TFail),
	}

	for _, peer := range peers {
		d.sender.Send(peer, msg)
	}
}
