package cache

import "github.com/gyuho/mlcache/cachepb"

// client issues reads and writes to second-level caches.
// Clients never crash.
type client struct {
	*base
}

func newClient(c Config) *client {
	return &client{base: newBase(c, cachepb.NODE_ROLE_CLIENT)}
}

// l2Caches are the second-level caches this client may contact.
func (cl *client) l2Caches() []cachepb.NodeID { return cl.parents }

func (cl *client) Step(msg cachepb.Message) error {
	if !cl.receive(msg) {
		return nil
	}

	switch msg.Type {
	case cachepb.MESSAGE_TYPE_JOIN:
		cl.stepJoin(msg)

	case cachepb.MESSAGE_TYPE_CRASH, cachepb.MESSAGE_TYPE_RECOVER:
		cl.drop(msg, "clients do not crash")

	case cachepb.MESSAGE_TYPE_INSTANTIATE_WRITE:
		cl.instantiateWrite(msg)

	case cachepb.MESSAGE_TYPE_INSTANTIATE_READ:
		cl.instantiateRead(msg)

	case cachepb.MESSAGE_TYPE_WRITE_CONFIRM:
		populate := cl.tracker.IsCorrelationPending(msg.ID)
		cl.store.Apply(msg.Key, msg.Value, msg.UpdateCount, populate)
		if populate {
			cl.tracker.ResolveWrite(msg.ID)
		}

	case cachepb.MESSAGE_TYPE_READ_REPLY:
		populate := cl.tracker.IsReadPending(msg.Key)
		cl.store.Apply(msg.Key, msg.Value, msg.UpdateCount, populate)
		cl.tracker.ResolveRead(msg.Key)

	case cachepb.MESSAGE_TYPE_ERROR:
		cl.stepError(msg)

	case cachepb.MESSAGE_TYPE_TIMEOUT:
		cl.stepTimeout(msg)

	default:
		return cl.unexpected(msg)
	}
	return nil
}

func (cl *client) instantiateWrite(msg cachepb.Message) {
	if cl.tracker.IsWritePending(msg.Key) {
		cl.drop(msg, "waiting for a write of key %d", msg.Key)
		return
	}
	if !cachepb.NodeIDs(cl.l2Caches()).Contains(msg.Target) {
		cl.drop(msg, "unknown L2 cache %s", msg.Target)
		return
	}

	tp := cachepb.MESSAGE_TYPE_WRITE
	if msg.Critical {
		tp = cachepb.MESSAGE_TYPE_CRITICAL_WRITE
	}
	req := cachepb.Message{
		Type:     tp,
		To:       msg.Target,
		ID:       cl.idGen.Next(),
		Key:      msg.Key,
		Value:    msg.Value,
		Critical: msg.Critical,
	}
	cl.tracker.BeginWrite(req.ID, req.Key, cachepb.None, msg.Critical)
	conv, _ := cl.tracker.write(req.ID)
	conv.request = req
	cl.sendWrite(conv, msg.Target, cl.cfg.ClientTimeout)
}

func (cl *client) instantiateRead(msg cachepb.Message) {
	if cl.tracker.IsReadPending(msg.Key) || cl.tracker.IsWritePending(msg.Key) {
		cl.drop(msg, "waiting for a reply on key %d", msg.Key)
		return
	}
	if !cachepb.NodeIDs(cl.l2Caches()).Contains(msg.Target) {
		cl.drop(msg, "unknown L2 cache %s", msg.Target)
		return
	}

	tp := cachepb.MESSAGE_TYPE_READ
	if msg.Critical {
		tp = cachepb.MESSAGE_TYPE_CRITICAL_READ
	}
	req := cachepb.Message{
		Type:     tp,
		To:       msg.Target,
		Key:      msg.Key,
		Critical: msg.Critical,
	}
	if e, ok := cl.store.Get(msg.Key); ok {
		req.UpdateCount = e.UpdateCount
	}
	cl.tracker.BeginRead(req.Key, cachepb.None, msg.Critical)
	conv, _ := cl.tracker.read(req.Key)
	conv.request = req
	cl.sendRead(conv, msg.Target, cl.cfg.ClientTimeout)
}

func (cl *client) stepError(msg cachepb.Message) {
	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		cl.tracker.ResolveRead(msg.Key)
	default:
		cl.tracker.ResolveWrite(msg.ID)
	}
	cl.lg.Infof("%s failed %q on key %d (%s: %s)", cl.describe(), msg.OriginalType, msg.Key, msg.ErrorKind, msg.Description)
}

// stepTimeout resends the request to another second-level cache,
// until the retries run out.
func (cl *client) stepTimeout(msg cachepb.Message) {
	switch msg.OriginalType {
	case cachepb.MESSAGE_TYPE_WRITE, cachepb.MESSAGE_TYPE_CRITICAL_WRITE:
		cl.retryWrite(msg, cl.l2Caches(), cl.cfg.ClientTimeout)

	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		cl.retryRead(msg, cl.l2Caches(), cl.cfg.ClientTimeout)
	}
}

func (cl *client) status() Status {
	return cl.baseStatus()
}
