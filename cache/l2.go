package cache

import "github.com/gyuho/mlcache/cachepb"

// l2Cache is a second-level cache. It serves clients, forwards to its single
// parent first-level cache, and votes in the critical writes of its parent.
type l2Cache struct {
	*base
}

func newL2Cache(c Config) *l2Cache {
	return &l2Cache{base: newBase(c, cachepb.NODE_ROLE_L2)}
}

// readGroup is where a read may go: the parent, or the store directly
// when the parent does not answer.
func (l2 *l2Cache) readGroup() []cachepb.NodeID {
	group := []cachepb.NodeID{}
	if p := l2.parent(); p != cachepb.None {
		group = append(group, p)
	}
	if l2.storeID != cachepb.None {
		group = append(group, l2.storeID)
	}
	return group
}

func (l2 *l2Cache) Step(msg cachepb.Message) error {
	if !l2.receive(msg) {
		return nil
	}

	switch msg.Type {
	case cachepb.MESSAGE_TYPE_JOIN:
		l2.stepJoin(msg)

	case cachepb.MESSAGE_TYPE_CRASH:
		l2.crash(msg, l2.flushBase)

	case cachepb.MESSAGE_TYPE_RECOVER:
		l2.recoverNode(msg)

	case cachepb.MESSAGE_TYPE_FLUSH:
		l2.flushBase()

	case cachepb.MESSAGE_TYPE_WRITE:
		l2.stepWrite(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE:
		l2.stepCriticalWrite(msg)

	case cachepb.MESSAGE_TYPE_WRITE_CONFIRM:
		conv, ok := l2.tracker.ResolveWrite(msg.ID)
		l2.store.Apply(msg.Key, msg.Value, msg.UpdateCount, ok)
		if ok {
			l2.sendToMailbox(cachepb.Message{
				Type:        cachepb.MESSAGE_TYPE_WRITE_CONFIRM,
				To:          conv.sender,
				ID:          msg.ID,
				Key:         msg.Key,
				Value:       msg.Value,
				UpdateCount: msg.UpdateCount,
			})
		}

	case cachepb.MESSAGE_TYPE_REFILL:
		l2.store.Apply(msg.Key, msg.Value, msg.UpdateCount, false)

	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		l2.stepRead(msg)

	case cachepb.MESSAGE_TYPE_FILL:
		l2.stepFill(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST:
		l2.stepVoteRequest(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT:
		conv, ok := l2.tracker.ResolveWrite(msg.ID)
		l2.store.Apply(msg.Key, msg.Value, msg.UpdateCount, ok)
		l2.unlockKey(msg.Key, msg.ID)
		if ok {
			l2.sendToMailbox(cachepb.Message{
				Type:        cachepb.MESSAGE_TYPE_WRITE_CONFIRM,
				To:          conv.sender,
				ID:          msg.ID,
				Key:         msg.Key,
				Value:       msg.Value,
				UpdateCount: msg.UpdateCount,
			})
		}

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT:
		l2.unlockKey(msg.Key, msg.ID)
		if conv, ok := l2.tracker.ResolveWrite(msg.ID); ok {
			l2.sendToMailbox(cachepb.Message{
				Type:         cachepb.MESSAGE_TYPE_ERROR,
				To:           conv.sender,
				ID:           msg.ID,
				Key:          msg.Key,
				ErrorKind:    cachepb.ERROR_KIND_VOTE_ABORT,
				OriginalType: cachepb.MESSAGE_TYPE_CRITICAL_WRITE,
				Description:  "critical write aborted",
			})
		}

	case cachepb.MESSAGE_TYPE_ERROR:
		l2.stepError(msg)

	case cachepb.MESSAGE_TYPE_TIMEOUT:
		l2.stepTimeout(msg)

	default:
		return l2.unexpected(msg)
	}
	return nil
}

func (l2 *l2Cache) stepWrite(msg cachepb.Message) {
	if l2.tracker.IsWritePending(msg.Key) || l2.store.IsLocked(msg.Key) {
		l2.drop(msg, "key %d is busy", msg.Key)
		return
	}
	l2.forwardWrite(msg)
}

func (l2 *l2Cache) stepCriticalWrite(msg cachepb.Message) {
	if l2.tracker.IsWritePending(msg.Key) || l2.lockKey(msg.Key, msg.ID) != nil {
		l2.sendToMailbox(cachepb.Message{
			Type:         cachepb.MESSAGE_TYPE_ERROR,
			To:           msg.From,
			ID:           msg.ID,
			Key:          msg.Key,
			ErrorKind:    cachepb.ERROR_KIND_VOTE_ABORT,
			OriginalType: msg.Type,
			Description:  "key is locked",
		})
		return
	}
	l2.forwardWrite(msg)
}

// forwardWrite sends a write to the parent. A write that times out is
// cleared here, and retried by the client through another cache.
func (l2 *l2Cache) forwardWrite(msg cachepb.Message) {
	l2.tracker.BeginWrite(msg.ID, msg.Key, msg.From, msg.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE)
	conv, _ := l2.tracker.write(msg.ID)

	conv.request = msg
	conv.request.From = cachepb.None

	timeout := l2.cfg.CacheTimeout
	if conv.critical {
		// the parent answers once the whole round is decided
		timeout = l2.cfg.DecisionTimeout
	}
	l2.sendWrite(conv, l2.parent(), timeout)
}

func (l2 *l2Cache) stepRead(msg cachepb.Message) {
	if l2.tracker.IsWritePending(msg.Key) {
		l2.drop(msg, "write of key %d in progress", msg.Key)
		return
	}

	critical := msg.Type == cachepb.MESSAGE_TYPE_CRITICAL_READ
	if !critical && l2.store.IsNewerOrEqual(msg.Key, msg.UpdateCount) {
		e, _ := l2.store.Get(msg.Key)
		l2.sendToMailbox(cachepb.Message{
			Type:        cachepb.MESSAGE_TYPE_READ_REPLY,
			To:          msg.From,
			Key:         msg.Key,
			Value:       e.Value,
			UpdateCount: e.UpdateCount,
		})
		return
	}

	if !l2.tracker.BeginRead(msg.Key, msg.From, critical) {
		return
	}
	conv, _ := l2.tracker.read(msg.Key)

	uc := msg.UpdateCount
	if e, ok := l2.store.Get(msg.Key); ok && e.UpdateCount > uc {
		uc = e.UpdateCount
	}
	conv.request = cachepb.Message{Type: msg.Type, Key: msg.Key, UpdateCount: uc, Critical: critical}
	l2.sendRead(conv, l2.parent(), l2.cfg.CacheTimeout)
}

// stepFill answers the waiting clients with the newest value held,
// which is the fill unless a newer refill arrived first. Critical readers
// wait for the fill of their critical fetch.
func (l2 *l2Cache) stepFill(msg cachepb.Message) {
	populate := l2.tracker.IsReadPending(msg.Key)
	l2.store.Apply(msg.Key, msg.Value, msg.UpdateCount, populate)

	plain, crit := l2.tracker.ResolveFill(msg.Key, msg.Critical)
	e, ok := l2.store.Get(msg.Key)
	if !ok {
		return
	}
	l2.answerReaders(cachepb.MESSAGE_TYPE_READ_REPLY, msg.Key, e, plain, crit)
}

// stepVoteRequest votes ok unless another operation holds the key.
func (l2 *l2Cache) stepVoteRequest(msg cachepb.Message) {
	ok := true
	if id, pending := l2.tracker.pendingWriteID(msg.Key); pending && id != msg.ID {
		ok = false
	}
	if ok && l2.lockKey(msg.Key, msg.ID) != nil {
		ok = false
	}

	vote := cachepb.Message{
		Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE,
		To:   msg.From,
		ID:   msg.ID,
		Key:  msg.Key,
		Ok:   ok,
	}
	l2.sendToMailbox(vote)
	if ok {
		l2.arm(vote, msg.From, cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE, 0, l2.cfg.DecisionTimeout)
	}
}

// stepError relays an error from upstream to whoever waits on it here.
func (l2 *l2Cache) stepError(msg cachepb.Message) {
	var waiting []cachepb.NodeID
	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		waiting = l2.tracker.ResolveRead(msg.Key)
	default:
		if conv, ok := l2.tracker.ResolveWrite(msg.ID); ok {
			l2.unlockKey(msg.Key, msg.ID)
			waiting = append(waiting, conv.sender)
		}
	}

	fwd := msg
	for _, to := range waiting {
		fwd.To = to
		l2.sendToMailbox(fwd)
	}
}

func (l2 *l2Cache) stepTimeout(msg cachepb.Message) {
	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		l2.retryRead(msg, l2.readGroup(), l2.cfg.CacheTimeout)

	case cachepb.MESSAGE_TYPE_WRITE, cachepb.MESSAGE_TYPE_CRITICAL_WRITE:
		if _, ok := l2.writeTimedOut(msg); !ok {
			return
		}
		l2.tracker.ResolveWrite(msg.ID)
		l2.unlockKey(msg.Key, msg.ID)
		l2.observe(cachepb.OPERATION_ABANDON, *msg.Original, "no answer from %s", msg.Unreachable)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE:
		// voted ok, but never learned the decision
		if owner, ok := l2.lockOwners[msg.Key]; ok && owner == msg.ID {
			l2.unlockKey(msg.Key, msg.ID)
			l2.observe(cachepb.OPERATION_ABANDON, *msg.Original, "no decision from %s", msg.Unreachable)
		}
	}
}

func (l2 *l2Cache) status() Status {
	st := l2.baseStatus()
	for _, id := range l2.lockOwners {
		st.ActiveRound = id
		break
	}
	return st
}
