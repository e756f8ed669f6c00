package backend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boltdb/bolt"
)

// batchTx holds one writable bolt transaction open, and commits it
// once batchLimit puts are pending or the backend's interval elapses.
//
// (etcd mvcc/backend.batchTx)
type batchTx struct {
	mu      sync.Mutex
	tx      *bolt.Tx
	backend *Backend
	pending int
}

func newBatchTx(be *Backend) (*batchTx, error) {
	bt := &batchTx{backend: be}
	bt.Lock()
	defer bt.Unlock()
	if err := bt.commit(false); err != nil {
		return nil, err
	}
	if _, err := bt.tx.CreateBucketIfNotExists(entryBucketName); err != nil {
		return nil, fmt.Errorf("backend: cannot create bucket %q (%v)", entryBucketName, err)
	}
	bt.pending++
	return bt, nil
}

func (bt *batchTx) Lock() { bt.mu.Lock() }

// Unlock commits first if the batch is full.
func (bt *batchTx) Unlock() {
	if bt.pending >= bt.backend.batchLimit {
		if err := bt.commit(false); err != nil {
			bt.backend.lg.Errorf("cannot commit batch (%v)", err)
		}
	}
	bt.mu.Unlock()
}

// Commit commits the pending puts, and opens the next transaction.
func (bt *batchTx) Commit() error {
	bt.Lock()
	defer bt.mu.Unlock()
	return bt.commit(false)
}

// CommitAndStop commits the pending puts without opening another transaction.
func (bt *batchTx) CommitAndStop() error {
	bt.Lock()
	defer bt.mu.Unlock()
	return bt.commit(true)
}

// must be called with mu held
func (bt *batchTx) commit(stop bool) error {
	if bt.tx != nil {
		if bt.pending == 0 && !stop {
			return nil
		}
		if err := bt.tx.Commit(); err != nil {
			return fmt.Errorf("backend: cannot commit tx (%v)", err)
		}
		bt.tx = nil
		bt.pending = 0
		atomic.AddInt64(&bt.backend.commits, 1)
	}
	if stop {
		return nil
	}

	tx, err := bt.backend.db.Begin(true)
	if err != nil {
		return fmt.Errorf("backend: cannot begin tx (%v)", err)
	}
	bt.tx = tx
	return nil
}

// must be called with mu held
func (bt *batchTx) unsafePut(key, value []byte) error {
	if bt.tx == nil {
		return ErrClosed
	}
	bucket := bt.tx.Bucket(entryBucketName)
	if bucket == nil {
		return ErrBucketNotFound
	}
	if err := bucket.Put(key, value); err != nil {
		return fmt.Errorf("backend: cannot put key into bucket (%v)", err)
	}
	bt.pending++
	return nil
}
