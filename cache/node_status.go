package cache

import "github.com/gyuho/mlcache/cachepb"

// KeyEntry is one held key in a Status.
type KeyEntry struct {
	Key int64
	Entry
}

// Status is a point-in-time copy of a node's state.
type Status struct {
	ID      cachepb.NodeID
	Role    cachepb.NODE_ROLE
	Crashed bool

	// Entries are the held keys, in ascending order.
	Entries []KeyEntry

	PendingReads  int
	PendingWrites int

	// ActiveRound is the critical write this node is coordinating
	// or voting on, zero if none.
	ActiveRound cachepb.ID
}

// Get returns the entry of key in the status.
func (st Status) Get(key int64) (Entry, bool) {
	for _, ke := range st.Entries {
		if ke.Key == key {
			return ke.Entry, true
		}
	}
	return Entry{}, false
}
