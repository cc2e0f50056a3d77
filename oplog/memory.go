package oplog

import (
	"sync"

	"github.com/maxpoletaev/ringkv/membership"
)

// EventType distinguishes the entries of a Memory log.
type EventType int

const (
	EventNodeAdded EventType = iota + 1
	EventNodeRemoved
	EventOperation
)

// Event is a single recorded entry.
type Event struct {
	Type EventType
	Self membership.PeerID
	Peer membership.PeerID
	Op   Op
}

// Memory keeps every event in memory. It is used by tests and by the
// simulation report.
type Memory struct {
	mut    sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) NodeAdded(self, peer membership.PeerID) {
	m.append(Event{Type: EventNodeAdded, Self: self, Peer: peer})
}

func (m *Memory) NodeRemoved(self, peer membership.PeerID) {
	m.append(Event{Type: EventNodeRemoved, Self: self, Peer: peer})
}

func (m *Memory) Operation(self membership.PeerID, op Op) {
	m.append(Event{Type: EventOperation, Self: self, Op: op})
}

func (m *Memory) append(e Event) {
	m.mut.Lock()
	defer m.mut.Unlock()

	m.events = append(m.events, e)
}

// Events returns a copy of all recorded events in order.
func (m *Memory) Events() []Event {
	m.mut.Lock()
	defer m.mut.Unlock()

	events := make([]Event, len(m.events))
	copy(events, m.events)

	return events
}

// Filter returns the events for which keep returns true.
func (m *Memory) Filter(keep func(Event) bool) []Event {
	var events []Event

	for _, e := range m.Events() {
		if keep(e) {
			events = append(events, e)
		}
	}

	return events
}

// CoordinatorOps returns the operations resolved by coordinators.
func (m *Memory) CoordinatorOps() []Op {
	var ops []Op

	for _, e := range m.Events() {
		if e.Type == EventOperation && e.Op.Coordinator {
			ops = append(ops, e.Op)
		}
	}

	return ops
}

// Removed returns the peers that self removed from its membership table.
func (m *Memory) Removed(self membership.PeerID) []membership.PeerID {
	var peers []membership.PeerID

	for _, e := range m.Events() {
		if e.Type == EventNodeRemoved && e.Self == self {
			peers = append(peers, e.Peer)
		}
	}

	return peers
}

// Reset drops all recorded events.
func (m *Memory) Reset() {
	m.mut.Lock()
	defer m.mut.Unlock()

	m.events = nil
}
