package backend

import (
	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/cachepb"
)

// Writer writes the commits of the authoritative store through to a Backend.
// It is an Observer of the store: every REFILL and CRITICAL_WRITE_COMMIT
// the store multicasts carries the committed value and update-count.
type Writer struct {
	be    *Backend
	store cachepb.NodeID
}

func NewWriter(be *Backend, store cachepb.NodeID) *Writer {
	return &Writer{be: be, store: store}
}

func (w *Writer) Observe(ev cachepb.Event) {
	if ev.Node != w.store || ev.Operation != cachepb.OPERATION_MULTICAST {
		return
	}
	msg := ev.Message
	if msg.Type != cachepb.MESSAGE_TYPE_REFILL && msg.Type != cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT {
		return
	}
	if err := w.be.Put(msg.Key, cache.Entry{Value: msg.Value, UpdateCount: msg.UpdateCount}); err != nil {
		w.be.lg.Warningf("cannot write key %d through (%v)", msg.Key, err)
	}
}
