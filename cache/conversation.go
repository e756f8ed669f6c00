package cache

import "github.com/gyuho/mlcache/cachepb"

// writeConversation is one write forwarded upstream.
type writeConversation struct {
	id       cachepb.ID
	key      int64
	critical bool

	// sender is the node waiting for the confirmation,
	// or cachepb.None when the write started here.
	sender cachepb.NodeID

	// request is resent as-is on retry.
	request cachepb.Message

	retryCount int
	tried      []cachepb.NodeID

	// attempt is bumped on every send and carried by its TIMEOUT.
	attempt uint32
}

// readConversation coalesces every concurrent reader of one key
// into a single upstream fetch.
type readConversation struct {
	key int64
	// critical is set once a critical fetch went upstream.
	critical bool

	// senders wait for any fill, criticalSenders only for
	// the fill of a critical fetch.
	senders         []cachepb.NodeID
	criticalSenders []cachepb.NodeID

	request cachepb.Message

	retryCount int
	tried      []cachepb.NodeID

	// attempt is bumped on every send and carried by its TIMEOUT.
	attempt uint32
}

// Tracker keeps the in-flight reads and writes of one node.
// It is only accessed by the node goroutine.
type Tracker struct {
	maxRetryCount int

	reads map[int64]*readConversation

	writes     map[cachepb.ID]*writeConversation
	writeByKey map[int64]cachepb.ID
}

// NewTracker returns an empty Tracker that allows
// maxRetryCount retries per conversation.
func NewTracker(maxRetryCount int) *Tracker {
	t := &Tracker{maxRetryCount: maxRetryCount}
	t.Reset()
	return t
}

// Reset drops every conversation.
func (t *Tracker) Reset() {
	t.reads = make(map[int64]*readConversation)
	t.writes = make(map[cachepb.ID]*writeConversation)
	t.writeByKey = make(map[int64]cachepb.ID)
}

// BeginRead registers sender as waiting for key. It returns true when the
// caller must fetch upstream: for the first reader of key, and when a
// critical reader joins a plain read, which is then upgraded to critical.
func (t *Tracker) BeginRead(key int64, sender cachepb.NodeID, critical bool) bool {
	conv, ok := t.reads[key]
	if !ok {
		conv = &readConversation{key: key}
		t.reads[key] = conv
	}

	if sender != cachepb.None {
		if critical {
			conv.criticalSenders = appendMissing(conv.criticalSenders, sender)
		} else {
			conv.senders = appendMissing(conv.senders, sender)
		}
	}
	if !ok {
		conv.critical = critical
		return true
	}
	if critical && !conv.critical {
		conv.critical = true
		return true
	}
	return false
}

func appendMissing(ids []cachepb.NodeID, id cachepb.NodeID) []cachepb.NodeID {
	if cachepb.NodeIDs(ids).Contains(id) {
		return ids
	}
	return append(ids, id)
}

// ResolveRead clears the read of key and returns every waiting sender.
func (t *Tracker) ResolveRead(key int64) []cachepb.NodeID {
	plain, crit := t.ResolveFill(key, true)
	for _, id := range crit {
		plain = appendMissing(plain, id)
	}
	return plain
}

// ResolveFill clears the senders a fill of key answers. A critical fill
// answers every sender and clears the read. A plain fill answers only the
// plain senders while a critical fetch is still out, and leaves the read
// pending for the critical ones.
func (t *Tracker) ResolveFill(key int64, critical bool) (plain, crit []cachepb.NodeID) {
	conv, ok := t.reads[key]
	if !ok {
		return nil, nil
	}
	if !critical && conv.critical {
		plain = conv.senders
		conv.senders = nil
		return plain, nil
	}
	delete(t.reads, key)
	return conv.senders, conv.criticalSenders
}

// IsReadPending returns true if a read of key is in flight.
func (t *Tracker) IsReadPending(key int64) bool {
	_, ok := t.reads[key]
	return ok
}

func (t *Tracker) read(key int64) (*readConversation, bool) {
	conv, ok := t.reads[key]
	return conv, ok
}

// BeginWrite registers the write id for key. A node starts at most one
// write per key, so callers check IsWritePending first.
func (t *Tracker) BeginWrite(id cachepb.ID, key int64, sender cachepb.NodeID, critical bool) {
	t.writes[id] = &writeConversation{id: id, key: key, sender: sender, critical: critical}
	t.writeByKey[key] = id
}

// ResolveWrite clears the write id.
func (t *Tracker) ResolveWrite(id cachepb.ID) (writeConversation, bool) {
	conv, ok := t.writes[id]
	if !ok {
		return writeConversation{}, false
	}
	delete(t.writes, id)
	if t.writeByKey[conv.key] == id {
		delete(t.writeByKey, conv.key)
	}
	return *conv, true
}

// IsWritePending returns true if a write of key is in flight.
func (t *Tracker) IsWritePending(key int64) bool {
	_, ok := t.writeByKey[key]
	return ok
}

// pendingWriteID returns the ID of the write in flight for key.
func (t *Tracker) pendingWriteID(key int64) (cachepb.ID, bool) {
	id, ok := t.writeByKey[key]
	return id, ok
}

// IsCorrelationPending returns true if the write id is in flight.
func (t *Tracker) IsCorrelationPending(id cachepb.ID) bool {
	_, ok := t.writes[id]
	return ok
}

func (t *Tracker) write(id cachepb.ID) (*writeConversation, bool) {
	conv, ok := t.writes[id]
	return conv, ok
}

// NumReads returns the number of reads in flight.
func (t *Tracker) NumReads() int { return len(t.reads) }

// NumWrites returns the number of writes in flight.
func (t *Tracker) NumWrites() int { return len(t.writes) }

// nextRetry counts one more retry. It returns false once the retries
// are exhausted; the caller then clears the conversation.
func (t *Tracker) nextRetry(retryCount *int) bool {
	if *retryCount >= t.maxRetryCount {
		return false
	}
	*retryCount++
	return true
}

// NextReadRetry counts a retry of the read of key. When the bound is
// exceeded, the read is cleared and false is returned with its senders.
func (t *Tracker) NextReadRetry(key int64) (*readConversation, bool) {
	conv, ok := t.reads[key]
	if !ok {
		return nil, false
	}
	if !t.nextRetry(&conv.retryCount) {
		delete(t.reads, key)
		return conv, false
	}
	return conv, true
}

// NextWriteRetry counts a retry of the write id. When the bound is
// exceeded, the write is cleared and false is returned.
func (t *Tracker) NextWriteRetry(id cachepb.ID) (*writeConversation, bool) {
	conv, ok := t.writes[id]
	if !ok {
		return nil, false
	}
	if !t.nextRetry(&conv.retryCount) {
		t.ResolveWrite(id)
		return conv, false
	}
	return conv, true
}
