package membership

import "sort"

// Entry is the local view of a single remote member.
type Entry struct {
	Peer      PeerID
	Heartbeat int64

	// LastUpdated is the local logical time at which the heartbeat was last
	// seen to advance. It never goes backwards.
	LastUpdated int64
}

// Age returns the number of ticks since the entry was last refreshed.
func (e Entry) Age(now int64) int64 {
	return now - e.LastUpdated
}

// Table is the set of known remote members, keyed by peer. It never holds
// the local node. The table is not safe for concurrent use; it is owned by
// the failure detector of a single node.
type Table struct {
	entries map[PeerID]Entry
}

// NewTable creates an empty membership table.
func NewTable() *Table {
	return &Table{
		entries: make(map[PeerID]Entry),
	}
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// Get returns the entry for the peer, if it exists.
func (t *Table) Get(peer PeerID) (Entry, bool) {
	e, ok := t.entries[peer]
	return e, ok
}

// Has returns true if there is an entry for the peer.
func (t *Table) Has(peer PeerID) bool {
	_, ok := t.entries[peer]
	return ok
}

// Insert adds a new entry. It returns false and leaves the table untouched if
// the peer is already known.
func (t *Table) Insert(e Entry) bool {
	if _, ok := t.entries[e.Peer]; ok {
		return false
	}

	t.entries[e.Peer] = e

	return true
}

// Refresh sets the heartbeat of a known peer and moves its LastUpdated
// forward to now. LastUpdated is never moved backwards. It returns false if
// the peer is unknown.
func (t *Table) Refresh(peer PeerID, heartbeat, now int64) bool {
	e, ok := t.entries[peer]
	if !ok {
		return false
	}

	e.Heartbeat = heartbeat
	if now > e.LastUpdated {
		e.LastUpdated = now
	}

	t.entries[peer] = e

	return true
}

// Remove deletes the entry for the peer. It returns false if there was none.
func (t *Table) Remove(peer PeerID) bool {
	if _, ok := t.entries[peer]; !ok {
		return false
	}

	delete(t.entries, peer)

	return true
}

// Entries returns a copy of all entries ordered by peer.
func (t *Table) Entries() []Entry {
	return t.filter(func(Entry) bool { return true })
}

// Peers returns the ids of all known peers ordered by peer.
func (t *Table) Peers() []PeerID {
	entries := t.Entries()
	peers := make([]PeerID, len(entries))

	for i := range entries {
		peers[i] = entries[i].Peer
	}

	return peers
}

// Fresh returns the entries that were refreshed less than window ticks ago.
func (t *Table) Fresh(now, window int64) []Entry {
	return t.filter(func(e Entry) bool {
		return e.Age(now) < window
	})
}

// Expired returns the entries that have not been refreshed for at least
// window ticks.
func (t *Table) Expired(now, window int64) []Entry {
	return t.filter(func(e Entry) bool {
		return e.Age(now) >= window
	})
}

func (t *Table) filter(keep func(Entry) bool) []Entry {
	entries := make([]Entry, 0, len(t.entries))

	for _, e := range t.entries {
		if keep(e) {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Peer.Less(entries[j].Peer)
	})

	return entries
}
