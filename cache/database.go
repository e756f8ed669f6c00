package cache

import (
	"fmt"

	"github.com/gyuho/mlcache/cachepb"
)

// database is the authoritative store: the single source of truth,
// and the only node that increments update-counts.
type database struct {
	*base

	coordinator *Coordinator
}

func newDatabase(c Config) *database {
	db := &database{base: newBase(c, cachepb.NODE_ROLE_STORE)}
	for _, ke := range c.Data {
		db.store.Set(ke.Key, ke.Value, ke.UpdateCount)
	}
	db.coordinator = NewCoordinator(
		func() int { return len(db.l1Caches()) },
		db.onAllVotedOk,
		db.onAbort,
	)
	return db
}

func (db *database) l1Caches() []cachepb.NodeID { return db.children }

func (db *database) flush() {
	db.flushBase()
	db.coordinator.ResetRound()
}

func (db *database) Step(msg cachepb.Message) error {
	if !db.receive(msg) {
		return nil
	}

	switch msg.Type {
	case cachepb.MESSAGE_TYPE_JOIN:
		db.stepJoin(msg)

	case cachepb.MESSAGE_TYPE_CRASH:
		db.crash(msg, db.flush)

	case cachepb.MESSAGE_TYPE_RECOVER:
		db.recoverNode(msg)

	case cachepb.MESSAGE_TYPE_FLUSH:
		db.flush()

	case cachepb.MESSAGE_TYPE_WRITE:
		db.stepWrite(msg)

	case cachepb.MESSAGE_TYPE_READ, cachepb.MESSAGE_TYPE_CRITICAL_READ:
		db.stepRead(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE:
		db.stepCriticalWrite(msg)

	case cachepb.MESSAGE_TYPE_CRITICAL_WRITE_VOTE:
		db.coordinator.OnVote(msg.ID, msg.Key, msg.From, msg.Ok)

	case cachepb.MESSAGE_TYPE_TIMEOUT:
		// a first-level cache never voted, which counts as its abort vote
		if msg.OriginalType == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST {
			if r, ok := db.coordinator.Active(); ok && r.ID == msg.ID {
				db.observe(cachepb.OPERATION_ABANDON, *msg.Original, "votes missing on key %d", msg.Key)
				db.coordinator.OnVote(msg.ID, msg.Key, cachepb.None, false)
			}
		}

	default:
		return db.unexpected(msg)
	}
	return nil
}

// next returns the update-count the next commit of key gets.
func (db *database) next(key int64) uint64 {
	e, _ := db.store.Get(key)
	return e.UpdateCount + 1
}

// stepWrite commits a plain write, and refills every first-level cache
// while the key is locked.
func (db *database) stepWrite(msg cachepb.Message) {
	if db.store.IsLocked(msg.Key) {
		db.drop(msg, "key %d is locked", msg.Key)
		return
	}

	uc := db.next(msg.Key)
	db.store.Set(msg.Key, msg.Value, uc)
	db.store.Lock(msg.Key)
	db.multicast(db.l1Caches(), cachepb.Message{
		Type:        cachepb.MESSAGE_TYPE_REFILL,
		ID:          msg.ID,
		Key:         msg.Key,
		Value:       msg.Value,
		UpdateCount: uc,
	})
	db.store.Unlock(msg.Key)
}

func (db *database) stepRead(msg cachepb.Message) {
	e, ok := db.store.Get(msg.Key)
	if !ok {
		db.sendToMailbox(cachepb.Message{
			Type:         cachepb.MESSAGE_TYPE_ERROR,
			To:           msg.From,
			Key:          msg.Key,
			ErrorKind:    cachepb.ERROR_KIND_UNKNOWN_KEY,
			OriginalType: msg.Type,
			Description:  fmt.Sprintf("key %d does not exist", msg.Key),
		})
		return
	}
	db.sendToMailbox(cachepb.Message{
		Type:        cachepb.MESSAGE_TYPE_FILL,
		To:          msg.From,
		Key:         msg.Key,
		Value:       e.Value,
		UpdateCount: e.UpdateCount,
		Critical:    msg.Type == cachepb.MESSAGE_TYPE_CRITICAL_READ,
	})
}

// stepCriticalWrite locks the key and asks every first-level cache to vote.
func (db *database) stepCriticalWrite(msg cachepb.Message) {
	if _, active := db.coordinator.Active(); active || db.lockKey(msg.Key, msg.ID) != nil {
		db.sendToMailbox(cachepb.Message{
			Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT,
			To:   msg.From,
			ID:   msg.ID,
			Key:  msg.Key,
		})
		return
	}

	req := cachepb.Message{
		Type:  cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST,
		ID:    msg.ID,
		Key:   msg.Key,
		Value: msg.Value,
	}
	db.multicast(db.l1Caches(), req)
	db.arm(req, cachepb.None, cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST, 0, db.cfg.StoreTimeout)
	db.coordinator.BeginRound(msg.ID, msg.Key, msg.Value)
}

func (db *database) onAllVotedOk(id cachepb.ID, key, value int64) {
	uc := db.next(key)
	db.store.Set(key, value, uc)
	db.unlockKey(key, id)
	db.multicast(db.l1Caches(), cachepb.Message{
		Type:        cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT,
		ID:          id,
		Key:         key,
		Value:       value,
		UpdateCount: uc,
	})
	db.lg.Infof("%s committed critical write %s (key %d = %d, uc %d)", db.describe(), id, key, value, uc)
}

func (db *database) onAbort(id cachepb.ID, key int64) {
	db.unlockKey(key, id)
	db.multicast(db.l1Caches(), cachepb.Message{
		Type: cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT,
		ID:   id,
		Key:  key,
	})
	db.lg.Infof("%s aborted critical write %s (key %d)", db.describe(), id, key)
}

func (db *database) status() Status {
	st := db.baseStatus()
	if r, ok := db.coordinator.Active(); ok {
		st.ActiveRound = r.ID
	}
	return st
}
