package cachepb

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// NodeID addresses a node in the hierarchy (e.g. "L1-0", "L2-3", "client-1").
// An empty NodeID means no node.
type NodeID string

// None is the empty NodeID.
const None NodeID = ""

func (id NodeID) String() string {
	if id == None {
		return "<none>"
	}
	return string(id)
}

// NodeIDs is a sortable list of NodeID.
type NodeIDs []NodeID

func (ids NodeIDs) Len() int           { return len(ids) }
func (ids NodeIDs) Less(i, j int) bool { return ids[i] < ids[j] }
func (ids NodeIDs) Swap(i, j int)      { ids[i], ids[j] = ids[j], ids[i] }

// Contains returns true if id is in ids.
func (ids NodeIDs) Contains(id NodeID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ID is a correlation ID for writes and critical-write rounds.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("%016x", uint64(id)) }

// IDGenerator generates unique IDs based on node index, timestamp, and counter.
//
//	| prefix   | suffix              |
//	| 2 bytes  | 5 bytes   | 1 byte  |
//	| node idx | timestamp | cnt     |
//
// (etcd idutil.Generator)
type IDGenerator struct {
	mu sync.Mutex

	// high order 2 bytes with node index
	prefix uint64

	// lower order 6 bytes
	// 5 bytes are for timestamps
	// 1 byte is for counter
	suffix uint64
}

func lowByteBit(x uint64, n uint) uint64 {
	return x & (math.MaxUint64 >> (8*8 - n)) // lower n bytes
}

// NewIDGenerator returns a new IDGenerator.
//
// (etcd idutil.NewGenerator)
func NewIDGenerator(nodeIndex uint16, now time.Time) *IDGenerator {
	prefix := uint64(nodeIndex) << (8 * 6)

	msec := uint64(now.UnixNano()) / uint64(time.Millisecond)
	suffix := lowByteBit(msec, 8*5)
	suffix = suffix << 8

	return &IDGenerator{prefix: prefix, suffix: suffix}
}

// Next generates the next unique ID.
func (g *IDGenerator) Next() ID {
	g.mu.Lock()
	g.suffix++
	id := g.prefix | lowByteBit(g.suffix, 8*6)
	g.mu.Unlock()

	return ID(id)
}
