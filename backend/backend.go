package backend

import (
	"errors"
	"fmt"
	"hash/crc32"
	"sync/atomic"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/pkg/xlog"
)

var (
	ErrBucketNotFound = errors.New("backend: bucket not found")
	ErrClosed         = errors.New("backend: closed")
)

var (
	DefaultBatchLimit    = 1000
	DefaultBatchInterval = 100 * time.Millisecond
)

var logger = xlog.NewLogger("backend", xlog.INFO)

// Backend is a bolt file of key entries.
type Backend struct {
	// commits counts the committed batches since Open
	commits int64

	lg *xlog.Logger
	db *bolt.DB

	batchInterval time.Duration
	batchLimit    int
	batchTx       *batchTx

	stopc chan struct{}
	donec chan struct{}
}

// Open opens or creates the bolt file at path. Puts are committed
// every batchInterval, or as soon as batchLimit of them are pending.
// Zero values select DefaultBatchInterval and DefaultBatchLimit.
func Open(path string, batchInterval time.Duration, batchLimit int) (*Backend, error) {
	if batchInterval <= 0 {
		batchInterval = DefaultBatchInterval
	}
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("backend: cannot open database at %s (%v)", path, err)
	}

	be := &Backend{
		lg:            logger,
		db:            db,
		batchInterval: batchInterval,
		batchLimit:    batchLimit,
		stopc:         make(chan struct{}),
		donec:         make(chan struct{}),
	}
	if be.batchTx, err = newBatchTx(be); err != nil {
		db.Close()
		return nil, err
	}
	if err = be.batchTx.Commit(); err != nil {
		db.Close()
		return nil, err
	}

	go be.run()
	return be, nil
}

func (be *Backend) run() {
	defer close(be.donec)

	tm := time.NewTimer(be.batchInterval)
	defer tm.Stop()

	for {
		select {
		case <-tm.C:
		case <-be.stopc:
			if err := be.batchTx.CommitAndStop(); err != nil {
				be.lg.Errorf("cannot commit on close (%v)", err)
			}
			return
		}
		if err := be.batchTx.Commit(); err != nil {
			be.lg.Errorf("cannot commit batch (%v)", err)
		}
		tm.Reset(be.batchInterval)
	}
}

// Put adds or replaces the entry of key in the current batch.
func (be *Backend) Put(key int64, e cache.Entry) error {
	be.batchTx.Lock()
	defer be.batchTx.Unlock()

	return be.batchTx.unsafePut(encodeKey(key), encodeEntry(e))
}

// Save puts every entry, and commits.
func (be *Backend) Save(entries []cache.KeyEntry) error {
	for _, ke := range entries {
		if err := be.Put(ke.Key, ke.Entry); err != nil {
			return err
		}
	}
	return be.ForceCommit()
}

// ForceCommit commits the current batch now.
func (be *Backend) ForceCommit() error {
	return be.batchTx.Commit()
}

// Load returns every committed entry in ascending key order.
func (be *Backend) Load() ([]cache.KeyEntry, error) {
	var entries []cache.KeyEntry
	err := be.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucketName)
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			key, err := decodeKey(k)
			if err != nil {
				return err
			}
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			entries = append(entries, cache.KeyEntry{Key: key, Entry: e})
			return nil
		})
	})
	return entries, err
}

// Hash returns the crc32 of the committed entries.
//
// (etcd mvcc/backend.backend.Hash)
func (be *Backend) Hash() (uint32, error) {
	h := crc32.New(crc32.MakeTable(crc32.Castagnoli))
	err := be.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucketName)
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			h.Write(k)
			h.Write(v)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Commits returns the number of committed batches.
func (be *Backend) Commits() int64 {
	return atomic.LoadInt64(&be.commits)
}

// Close commits the current batch and closes the file.
func (be *Backend) Close() error {
	select {
	case <-be.stopc:
		return ErrClosed
	default:
	}
	close(be.stopc)
	<-be.donec
	return be.db.Close()
}
