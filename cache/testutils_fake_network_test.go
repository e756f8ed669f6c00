package cache

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/pkg/xlog"
)

func init() {
	SetLogger(xlog.NewLogger("cache", xlog.CRITICAL))
}

type connection struct {
	from, to cachepb.NodeID
}

// fakeNetwork steps state machines in one goroutine, delivering messages
// in FIFO order. Timeouts are collected, and only delivered on fireTimeouts.
type fakeNetwork struct {
	allStateMachines map[cachepb.NodeID]stateMachine

	allDroppedConnections  map[connection]float64
	allIgnoredMessageTypes map[cachepb.MESSAGE_TYPE]bool

	// armed timeouts, not delivered yet
	timeouts []cachepb.Message

	// every message handed to a state machine
	delivered []cachepb.Message
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		allStateMachines:       make(map[cachepb.NodeID]stateMachine),
		allDroppedConnections:  make(map[connection]float64),
		allIgnoredMessageTypes: make(map[cachepb.MESSAGE_TYPE]bool),
	}
}

func (fn *fakeNetwork) add(id cachepb.NodeID, sm stateMachine) {
	fn.allStateMachines[id] = sm
}

func (fn *fakeNetwork) stepFirstFrontMessage(msgs ...cachepb.Message) {
	for len(msgs) > 0 {
		m := msgs[0]
		msgs = msgs[1:]

		st, ok := fn.allStateMachines[m.To]
		if !ok {
			continue
		}
		fn.delivered = append(fn.delivered, m)
		st.Step(m)

		msgs = append(msgs, fn.filter(st.readAndClearMailbox())...)
		for _, t := range st.readAndClearTimers() {
			fn.timeouts = append(fn.timeouts, t.msg)
		}
	}
}

func (fn *fakeNetwork) filter(msgs []cachepb.Message) []cachepb.Message {
	var filtered []cachepb.Message
	for _, msg := range msgs {
		if fn.allIgnoredMessageTypes[msg.Type] {
			continue
		}
		percentage := fn.allDroppedConnections[connection{from: msg.From, to: msg.To}]
		if rand.Float64() < percentage {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

// fireTimeouts delivers the armed timeouts that match, and returns how many.
// Timeouts armed while delivering are kept for a later call.
func (fn *fakeNetwork) fireTimeouts(match func(cachepb.Message) bool) int {
	var fire, keep []cachepb.Message
	for _, t := range fn.timeouts {
		if match(t) {
			fire = append(fire, t)
		} else {
			keep = append(keep, t)
		}
	}
	fn.timeouts = keep

	for _, t := range fire {
		fn.stepFirstFrontMessage(t)
	}
	return len(fire)
}

func timeoutOf(id cachepb.NodeID, kinds ...cachepb.MESSAGE_TYPE) func(cachepb.Message) bool {
	return func(m cachepb.Message) bool {
		if m.To != id {
			return false
		}
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if m.OriginalType == k {
				return true
			}
		}
		return false
	}
}

func (fn *fakeNetwork) recoverAll() {
	fn.allDroppedConnections = make(map[connection]float64)
	fn.allIgnoredMessageTypes = make(map[cachepb.MESSAGE_TYPE]bool)
}

func (fn *fakeNetwork) dropConnectionByPercentage(from, to cachepb.NodeID, percentage float64) {
	fn.allDroppedConnections[connection{from, to}] = percentage
}

func (fn *fakeNetwork) cutConnection(id1, id2 cachepb.NodeID) {
	fn.allDroppedConnections[connection{id1, id2}] = 1
	fn.allDroppedConnections[connection{id2, id1}] = 1
}

func (fn *fakeNetwork) ignoreMessageType(tp cachepb.MESSAGE_TYPE) {
	fn.allIgnoredMessageTypes[tp] = true
}

func (fn *fakeNetwork) status(id cachepb.NodeID) Status {
	return fn.allStateMachines[id].status()
}

func (fn *fakeNetwork) get(id cachepb.NodeID, key int64) (Entry, bool) {
	return fn.status(id).Get(key)
}

// deliveredMessages returns the delivered messages that match.
func (fn *fakeNetwork) deliveredMessages(match func(cachepb.Message) bool) []cachepb.Message {
	var msgs []cachepb.Message
	for _, m := range fn.delivered {
		if match(m) {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func messageTo(to cachepb.NodeID, tp cachepb.MESSAGE_TYPE) func(cachepb.Message) bool {
	return func(m cachepb.Message) bool { return m.To == to && m.Type == tp }
}

func messageOf(tp cachepb.MESSAGE_TYPE) func(cachepb.Message) bool {
	return func(m cachepb.Message) bool { return m.Type == tp }
}

func newTestConfig(id cachepb.NodeID, index uint16) Config {
	c := Config{
		ID:    id,
		Index: index,
		Rand:  rand.New(rand.NewSource(int64(index) + 1)),
	}
	if err := c.validate(); err != nil {
		panic(err)
	}
	return c
}

const testStoreID = cachepb.NodeID("store")

func testL1ID(i int) cachepb.NodeID     { return cachepb.NodeID(fmt.Sprintf("L1-%d", i)) }
func testL2ID(i, j int) cachepb.NodeID  { return cachepb.NodeID(fmt.Sprintf("L2-%d-%d", i, j)) }
func testClientID(k int) cachepb.NodeID { return cachepb.NodeID(fmt.Sprintf("client-%d", k)) }

// newTestHierarchy builds a store "store", first-level caches "L1-i",
// second-level caches "L2-i-j" under L1-i, and clients "client-k"
// that know every second-level cache. All joins are delivered.
func newTestHierarchy(l1Num, l2PerL1, clientNum int, data ...KeyEntry) *fakeNetwork {
	fn := newFakeNetwork()

	var index uint16
	next := func(id cachepb.NodeID) Config {
		index++
		return newTestConfig(id, index)
	}

	storeCfg := next(testStoreID)
	storeCfg.Data = data
	fn.add(testStoreID, newDatabase(storeCfg))

	var (
		joins  []cachepb.Message
		l1s    []cachepb.NodeID
		allL2s []cachepb.NodeID
	)
	for i := 0; i < l1Num; i++ {
		l1 := testL1ID(i)
		l1s = append(l1s, l1)
		fn.add(l1, newL1Cache(next(l1)))

		var l2s []cachepb.NodeID
		for j := 0; j < l2PerL1; j++ {
			l2 := testL2ID(i, j)
			l2s = append(l2s, l2)
			fn.add(l2, newL2Cache(next(l2)))
			joins = append(joins,
				join(l2, cachepb.JOIN_ROLE_PARENT, l1),
				join(l2, cachepb.JOIN_ROLE_STORE, testStoreID),
			)
		}
		allL2s = append(allL2s, l2s...)
		joins = append(joins,
			join(l1, cachepb.JOIN_ROLE_CHILDREN, l2s...),
			join(l1, cachepb.JOIN_ROLE_STORE, testStoreID),
		)
	}
	joins = append(joins, join(testStoreID, cachepb.JOIN_ROLE_CHILDREN, l1s...))

	for k := 0; k < clientNum; k++ {
		cl := testClientID(k)
		fn.add(cl, newClient(next(cl)))
		joins = append(joins, join(cl, cachepb.JOIN_ROLE_PARENT, allL2s...))
	}

	fn.stepFirstFrontMessage(joins...)
	fn.delivered = nil
	return fn
}

func join(to cachepb.NodeID, role cachepb.JOIN_ROLE, group ...cachepb.NodeID) cachepb.Message {
	return cachepb.Message{Type: cachepb.MESSAGE_TYPE_JOIN, To: to, JoinRole: role, Group: group}
}

func instantiateWrite(cl cachepb.NodeID, target cachepb.NodeID, key, value int64, critical bool) cachepb.Message {
	return cachepb.Message{
		Type:     cachepb.MESSAGE_TYPE_INSTANTIATE_WRITE,
		To:       cl,
		Target:   target,
		Key:      key,
		Value:    value,
		Critical: critical,
	}
}

func instantiateRead(cl cachepb.NodeID, target cachepb.NodeID, key int64, critical bool) cachepb.Message {
	return cachepb.Message{
		Type:     cachepb.MESSAGE_TYPE_INSTANTIATE_READ,
		To:       cl,
		Target:   target,
		Key:      key,
		Critical: critical,
	}
}

func (b *base) isLocked(key int64) bool { return b.store.IsLocked(key) }

func (b *base) baseOf() *base { return b }

func (fn *fakeNetwork) nodeBase(id cachepb.NodeID) *base {
	return fn.allStateMachines[id].(interface{ baseOf() *base }).baseOf()
}

// lockedAt returns the nodes that hold a lock on key, sorted.
func (fn *fakeNetwork) lockedAt(key int64) []cachepb.NodeID {
	var ids cachepb.NodeIDs
	for id := range fn.allStateMachines {
		if fn.nodeBase(id).isLocked(key) {
			ids = append(ids, id)
		}
	}
	sort.Sort(ids)
	return ids
}
