package cache

import "github.com/gyuho/mlcache/cachepb"

// l1Round is the critical write a first-level cache takes part in.
// It lives from the first request (from a child or from the store)
// until the store decides, or the round aborts here.
type l1Round struct {
	id    cachepb.ID
	key   int64
	value int64

	// childrenDone is set once every child voted ok.
	childrenDone bool
	// upstreamRequested is set once the store asked for this cache's vote.
	upstreamRequested bool
	// voted is set once the ok vote went to the store.
	voted bool
}

// l1Cache is a first-level cache. It forwards to the authoritative store,
// fans responses out to its second-level children, and aggregates the
// votes of its children into its own vote for the store.
type l1Cache struct {
	*base

	coordinator *Coordinator
	round       *l1Round

	// aborted are the rounds this cache aborted before the store asked
	// for its vote. The store's request for them is answered with abort.
	aborted map[cachepb.ID]struct{}
}

func newL1Cache(c Config) *l1Cache {
	l1 := &l1Cache{
		base:    newBase(c, cachepb.NODE_ROLE_L1),
		aborted: make(map[cachepb.ID]struct{}),
	}
	l1.coordinator = NewCoordinator(
		func() int { return len(l1.children) },
		l1.onChildrenVotedOk,
		l1.onChildAbort,
	)
	return l1
}

func (l1 *l1Cache) flush() {
	l1.flushBase()
	l1.coordinator.ResetRound()
	l1.round = nil
	l1.aborted = make(map[cachepb.ID]struct{})
}

func (l1 *l1Cache) Step(msg cachepb.Message) error {
	if !l1.receive(msg) {
		return nil
	}

	switch msg.Type {
	case cachepb.MESSAGE_TYPE_JOIN:
		l1.stepJoin(msg)

	case cachepb.MESSAGE_TYPE_CRASH:
		l1.crash(msg, l1.flush)

	case cachepb.MESSAGE_TYPE_RECOVER:
		if l1.recoverNode(msg) {
			// children may wait on conversations this cache forgot
			l1.multicast(l1.children, cachepb.Message{Type: cachepb.MESSAGE_TYPE_FLUSH})
		}

	case cachepb.MESSAGE_TYPE_FLUSH:
		l1.flush()

	case cachepb.MESSAGE_TYPE_WRITE:
		l1.stepWrite(msg)

	case cachepb.MESSAGE_TYPE_REFILL:
		l1.stepRefill(msg)

	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		l1.stepRead(msg)

	case cachepb.MESSAGE_TYPE_FILL:
		l1.stepFill(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE:
		l1.stepCriticalWrite(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST:
		l1.stepVoteRequest(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE:
		l1.coordinator.OnVote(msg.ID, msg.Key, msg.From, msg.Ok)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT:
		l1.stepDecision(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT:
		l1.stepDecision(msg)

	case cachepb.MESSAGE_TYPE_ERROR:
		l1.stepError(msg)

	case cachepb.MESSAGE_TYPE_TIMEOUT:
		l1.stepTimeout(msg)

	default:
		return l1.unexpected(msg)
	}
	return nil
}

func (l1 *l1Cache) stepWrite(msg cachepb.Message) {
	if l1.tracker.IsWritePending(msg.Key) || l1.store.IsLocked(msg.Key) {
		l1.drop(msg, "key %d is busy", msg.Key)
		return
	}
	l1.tracker.BeginWrite(msg.ID, msg.Key, msg.From, false)
	conv, _ := l1.tracker.write(msg.ID)
	conv.request = msg
	conv.request.From = cachepb.None
	l1.sendWrite(conv, l1.storeID, l1.cfg.CacheTimeout)
}

// stepRefill confirms the write to the child it came from,
// and pushes the new value to every child.
func (l1 *l1Cache) stepRefill(msg cachepb.Message) {
	l1.store.Apply(msg.Key, msg.Value, msg.UpdateCount, false)

	if conv, ok := l1.tracker.ResolveWrite(msg.ID); ok {
		l1.sendToMailbox(cachepb.Message{
			Type:        cachepb.MESSAGE_TYPE_WRITE_CONFIRM,
			To:          conv.sender,
			ID:          msg.ID,
			Key:         msg.Key,
			Value:       msg.Value,
			UpdateCount: msg.UpdateCount,
		})
	}

	l1.multicast(l1.children, cachepb.Message{
		Type:        cachepb.MESSAGE_TYPE_REFILL,
		ID:          msg.ID,
		Key:         msg.Key,
		Value:       msg.Value,
		UpdateCount: msg.UpdateCount,
	})
}

func (l1 *l1Cache) stepRead(msg cachepb.Message) {
	if l1.tracker.IsWritePending(msg.Key) {
		l1.drop(msg, "write of key %d in progress", msg.Key)
		return
	}

	critical := msg.Type == cachepb.MESSAGE_TYPE_CRITICAL_READ
	if !critical && l1.store.IsNewerOrEqual(msg.Key, msg.UpdateCount) {
		e, _ := l1.store.Get(msg.Key)
		l1.sendToMailbox(cachepb.Message{
			Type:        cachepb.MESSAGE_TYPE_FILL,
			To:          msg.From,
			Key:         msg.Key,
			Value:       e.Value,
			UpdateCount: e.UpdateCount,
		})
		return
	}

	if !l1.tracker.BeginRead(msg.Key, msg.From, critical) {
		return
	}
	conv, _ := l1.tracker.read(msg.Key)

	uc := msg.UpdateCount
	if e, ok := l1.store.Get(msg.Key); ok && e.UpdateCount > uc {
		uc = e.UpdateCount
	}
	conv.request = cachepb.Message{Type: msg.Type, Key: msg.Key, UpdateCount: uc, Critical: critical}
	l1.sendRead(conv, l1.storeID, l1.cfg.CacheTimeout)
}

func (l1 *l1Cache) stepFill(msg cachepb.Message) {
	populate := l1.tracker.IsReadPending(msg.Key)
	l1.store.Apply(msg.Key, msg.Value, msg.UpdateCount, populate)

	plain, crit := l1.tracker.ResolveFill(msg.Key, msg.Critical)
	e, ok := l1.store.Get(msg.Key)
	if !ok {
		return
	}
	l1.answerReaders(cachepb.MESSAGE_TYPE_FILL, msg.Key, e, plain, crit)
}

// stepCriticalWrite starts a round over the children for a critical write
// from one of them, and forwards the write to the store.
func (l1 *l1Cache) stepCriticalWrite(msg cachepb.Message) {
	if l1.round != nil || l1.tracker.IsWritePending(msg.Key) || l1.lockKey(msg.Key, msg.ID) != nil {
		l1.sendToMailbox(cachepb.Message{
			Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT,
			To:   msg.From,
			ID:   msg.ID,
			Key:  msg.Key,
		})
		return
	}

	l1.tracker.BeginWrite(msg.ID, msg.Key, msg.From, true)
	conv, _ := l1.tracker.write(msg.ID)
	conv.request = msg
	conv.request.From = cachepb.None

	l1.beginRound(msg.ID, msg.Key, msg.Value)
	l1.sendWrite(conv, l1.storeID, l1.cfg.DecisionTimeout)
}

// stepVoteRequest handles the store asking for this cache's vote.
func (l1 *l1Cache) stepVoteRequest(msg cachepb.Message) {
	if l1.round != nil && l1.round.id == msg.ID {
		l1.round.upstreamRequested = true
		l1.maybeVote()
		return
	}

	_, abortedHere := l1.aborted[msg.ID]
	conflict := l1.round != nil || abortedHere
	if id, pending := l1.tracker.pendingWriteID(msg.Key); pending && id != msg.ID {
		conflict = true
	}
	if conflict || l1.lockKey(msg.Key, msg.ID) != nil {
		l1.sendToMailbox(cachepb.Message{
			Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE,
			To:   msg.From,
			ID:   msg.ID,
			Key:  msg.Key,
			Ok:   false,
		})
		return
	}

	l1.beginRound(msg.ID, msg.Key, msg.Value)
	l1.round.upstreamRequested = true
	l1.maybeVote()
}

// beginRound asks the children for their votes. Callers hold the key lock.
func (l1 *l1Cache) beginRound(id cachepb.ID, key, value int64) {
	l1.round = &l1Round{id: id, key: key, value: value}

	req := cachepb.Message{Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST, ID: id, Key: key, Value: value}
	l1.multicast(l1.children, req)
	l1.arm(req, cachepb.None, cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST, 0, l1.cfg.CacheTimeout)
	l1.arm(req, l1.storeID, cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE, 0, l1.cfg.DecisionTimeout)

	// may complete right away without children
	l1.coordinator.BeginRound(id, key, value)
}

func (l1 *l1Cache) onChildrenVotedOk(id cachepb.ID, key, value int64) {
	if l1.round == nil || l1.round.id != id {
		return
	}
	l1.round.childrenDone = true
	l1.maybeVote()
}

// maybeVote votes ok to the store once every child voted ok
// and the store asked.
func (l1 *l1Cache) maybeVote() {
	r := l1.round
	if r == nil || r.voted || !r.childrenDone || !r.upstreamRequested {
		return
	}
	r.voted = true
	l1.sendToMailbox(cachepb.Message{
		Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE,
		To:   l1.storeID,
		ID:   r.id,
		Key:  r.key,
		Ok:   true,
	})
}

// onChildAbort aborts the round here, and tells the store right away.
func (l1 *l1Cache) onChildAbort(id cachepb.ID, key int64) {
	l1.abortRound(id, key, true)
}

// abortRound unlocks key, aborts the children and, if voteUp, votes abort
// to the store. A round aborted before the store asked is remembered,
// so that the store's late request gets an abort vote.
func (l1 *l1Cache) abortRound(id cachepb.ID, key int64, voteUp bool) {
	if l1.round == nil || l1.round.id != id {
		return
	}
	if !l1.round.upstreamRequested {
		l1.aborted[id] = struct{}{}
	}
	l1.round = nil
	l1.coordinator.ResetRound()
	l1.unlockKey(key, id)
	l1.tracker.ResolveWrite(id)

	if voteUp {
		l1.sendToMailbox(cachepb.Message{
			Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE,
			To:   l1.storeID,
			ID:   id,
			Key:  key,
			Ok:   false,
		})
	}
	l1.multicast(l1.children, cachepb.Message{
		Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT,
		ID:   id,
		Key:  key,
	})
}

// stepDecision applies the store's commit or abort,
// and passes it down to the children.
func (l1 *l1Cache) stepDecision(msg cachepb.Message) {
	if msg.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT {
		originator := l1.tracker.IsCorrelationPending(msg.ID)
		l1.store.Apply(msg.Key, msg.Value, msg.UpdateCount, originator)
	}
	l1.unlockKey(msg.Key, msg.ID)
	l1.tracker.ResolveWrite(msg.ID)
	if l1.round != nil && l1.round.id == msg.ID {
		l1.round = nil
		l1.coordinator.ResetRound()
	}
	delete(l1.aborted, msg.ID)

	fwd := msg
	fwd.To = cachepb.None
	l1.multicast(l1.children, fwd)
}

func (l1 *l1Cache) stepError(msg cachepb.Message) {
	var waiting []cachepb.NodeID
	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		waiting = l1.tracker.ResolveRead(msg.Key)
	default:
		if conv, ok := l1.tracker.ResolveWrite(msg.ID); ok {
			waiting = append(waiting, conv.sender)
		}
	}

	fwd := msg
	for _, to := range waiting {
		fwd.To = to
		l1.sendToMailbox(fwd)
	}
}

func (l1 *l1Cache) stepTimeout(msg cachepb.Message) {
	storeOnly := []cachepb.NodeID{l1.storeID}

	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		l1.retryRead(msg, storeOnly, l1.cfg.CacheTimeout)

	case cachepb.MESSAGE_TYPE_WRITE:
		l1.retryWrite(msg, storeOnly, l1.cfg.CacheTimeout)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST:
		// a child never voted, which counts as its abort vote
		if l1.round != nil && l1.round.id == msg.ID && !l1.round.childrenDone {
			l1.observe(cachepb.OPERATION_ABANDON, *msg.Original, "children did not vote on key %d", msg.Key)
			l1.abortRound(msg.ID, msg.Key, true)
		}

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE:
		// the store never decided; it aborts on its own timeout
		if l1.round != nil && l1.round.id == msg.ID {
			l1.observe(cachepb.OPERATION_ABANDON, *msg.Original, "no decision from %s", l1.storeID)
			l1.abortRound(msg.ID, msg.Key, false)
		}
	}
}

func (l1 *l1Cache) status() Status {
	st := l1.baseStatus()
	if l1.round != nil {
		st.ActiveRound = l1.round.id
	}
	return st
}
