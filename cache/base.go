package cache

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gyuho/mlcache/cachepb"
)

// stateMachine is one node role. It is stepped by exactly one goroutine.
type stateMachine interface {
	// Step handles one message. Replies go to the mailbox, timeouts to the timers.
	Step(msg cachepb.Message) error

	readAndClearMailbox() []cachepb.Message
	readAndClearTimers() []timer

	status() Status
}

// base is the state every role shares.
type base struct {
	id   cachepb.NodeID
	role cachepb.NODE_ROLE
	cfg  Config

	lg       Logger
	observer Observer
	rand     *rand.Rand
	idGen    *cachepb.IDGenerator

	// set by JOIN
	parents  []cachepb.NodeID
	children []cachepb.NodeID
	storeID  cachepb.NodeID

	crashed bool

	store   *Store
	tracker *Tracker

	// lockOwners maps a locked key to the critical write holding it.
	// Plain-write locks at the authoritative store have no owner.
	lockOwners map[int64]cachepb.ID

	mailbox []cachepb.Message
	timers  []timer
}

func newBase(c Config, role cachepb.NODE_ROLE) *base {
	return &base{
		id:   c.ID,
		role: role,
		cfg:  c,

		lg:       c.Logger,
		observer: c.Observer,
		rand:     c.Rand,
		idGen:    cachepb.NewIDGenerator(c.Index, time.Now()),

		store:      NewStore(),
		tracker:    NewTracker(c.MaxRetryCount),
		lockOwners: make(map[int64]cachepb.ID),
	}
}

func (b *base) describe() string {
	return fmt.Sprintf("%s %s [crashed=%v | reads=%d | writes=%d]",
		b.role, b.id, b.crashed, b.tracker.NumReads(), b.tracker.NumWrites())
}

func (b *base) observe(op cachepb.OPERATION, msg cachepb.Message, format string, args ...interface{}) {
	ev := cachepb.Event{Node: b.id, Operation: op, Message: msg}
	if format != "" {
		ev.Info = fmt.Sprintf(format, args...)
	}
	b.observer.Observe(ev)
}

// sendToMailbox queues msg for msg.To.
func (b *base) sendToMailbox(msg cachepb.Message) {
	msg.From = b.id
	b.mailbox = append(b.mailbox, msg)
	b.observe(cachepb.OPERATION_SEND, msg, "")
}

// multicast queues one copy of msg per member of group.
func (b *base) multicast(group []cachepb.NodeID, msg cachepb.Message) {
	msg.From = b.id
	for _, id := range group {
		m := msg
		m.To = id
		b.mailbox = append(b.mailbox, m)
	}
	b.observe(cachepb.OPERATION_MULTICAST, msg, "to %v", group)
}

// answerReaders sends e to the readers of key that a fill resolved.
// Critical readers get the reply marked critical.
func (b *base) answerReaders(tp cachepb.MESSAGE_TYPE, key int64, e Entry, plain, crit []cachepb.NodeID) {
	reply := cachepb.Message{Type: tp, Key: key, Value: e.Value, UpdateCount: e.UpdateCount}
	for _, to := range crit {
		reply.To, reply.Critical = to, true
		b.sendToMailbox(reply)
	}
	for _, to := range plain {
		if cachepb.NodeIDs(crit).Contains(to) {
			continue
		}
		reply.To, reply.Critical = to, false
		b.sendToMailbox(reply)
	}
}

func (b *base) readAndClearMailbox() []cachepb.Message {
	msgs := b.mailbox
	b.mailbox = nil
	return msgs
}

func (b *base) drop(msg cachepb.Message, format string, args ...interface{}) {
	b.observe(cachepb.OPERATION_DROP, msg, format, args...)
	b.lg.Debugf("%s dropped %s (%s)", b.describe(), cachepb.DescribeMessage(msg), fmt.Sprintf(format, args...))
}

// receive records msg and reports whether the role should handle it.
// A crashed node only accepts RECOVER.
func (b *base) receive(msg cachepb.Message) bool {
	if b.crashed && msg.Type != cachepb.MESSAGE_TYPE_RECOVER {
		b.drop(msg, "crashed")
		return false
	}
	b.observe(cachepb.OPERATION_RECEIVE, msg, "")
	return true
}

func (b *base) stepJoin(msg cachepb.Message) {
	group := append([]cachepb.NodeID(nil), msg.Group...)
	switch msg.JoinRole {
	case cachepb.JOIN_ROLE_PARENT:
		b.parents = group
	case cachepb.JOIN_ROLE_CHILDREN:
		b.children = group
	case cachepb.JOIN_ROLE_STORE:
		if len(group) > 0 {
			b.storeID = group[0]
		}
	}
	b.lg.Infof("%s joined %s %v", b.describe(), msg.JoinRole, group)
}

func (b *base) parent() cachepb.NodeID {
	if len(b.parents) == 0 {
		return cachepb.None
	}
	return b.parents[0]
}

// lockKey locks key on behalf of the critical write id.
// Locking again for the same id is a no-op.
func (b *base) lockKey(key int64, id cachepb.ID) error {
	if owner, ok := b.lockOwners[key]; ok && owner == id && b.store.IsLocked(key) {
		return nil
	}
	if err := b.store.Lock(key); err != nil {
		return err
	}
	b.lockOwners[key] = id
	return nil
}

// unlockKey releases key if the critical write id holds it.
func (b *base) unlockKey(key int64, id cachepb.ID) {
	if owner, ok := b.lockOwners[key]; !ok || owner != id {
		return
	}
	delete(b.lockOwners, key)
	b.store.Unlock(key)
}

// flushBase drops every conversation and lock. Values and update-counts stay.
func (b *base) flushBase() {
	b.tracker.Reset()
	b.store.UnlockAll()
	b.lockOwners = make(map[int64]cachepb.ID)
}

// crash discards the ephemeral state through flush, and makes
// the node drop everything but RECOVER.
func (b *base) crash(msg cachepb.Message, flush func()) {
	if b.crashed {
		return
	}
	b.crashed = true
	flush()
	b.observe(cachepb.OPERATION_STATE, msg, "crashed")
	b.lg.Warningf("%s crashed", b.describe())
}

// recoverNode returns false if the node was not crashed.
func (b *base) recoverNode(msg cachepb.Message) bool {
	if !b.crashed {
		return false
	}
	b.crashed = false
	b.observe(cachepb.OPERATION_STATE, msg, "recovered")
	b.lg.Infof("%s recovered", b.describe())
	return true
}

func (b *base) unexpected(msg cachepb.Message) error {
	b.lg.Warningf("%s received unexpected %s", b.describe(), cachepb.DescribeMessage(msg))
	return fmt.Errorf("%w %q at %s", ErrUnexpectedMessage, msg.Type, b.id)
}

func (b *base) baseStatus() Status {
	st := Status{
		ID:            b.id,
		Role:          b.role,
		Crashed:       b.crashed,
		PendingReads:  b.tracker.NumReads(),
		PendingWrites: b.tracker.NumWrites(),
	}
	b.store.Ascend(func(key int64, e Entry) bool {
		st.Entries = append(st.Entries, KeyEntry{Key: key, Entry: e})
		return true
	})
	return st
}
