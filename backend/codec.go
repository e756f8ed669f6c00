package backend

import (
	"encoding/binary"
	"fmt"

	"github.com/gyuho/mlcache/cache"
)

var entryBucketName = []byte("entries")

const (
	keySize   = 8
	valueSize = 16
)

// encodeKey flips the sign bit, so that bolt's byte order is the int64 order.
func encodeKey(key int64) []byte {
	b := make([]byte, keySize)
	binary.BigEndian.PutUint64(b, uint64(key)^(1<<63))
	return b
}

func decodeKey(b []byte) (int64, error) {
	if len(b) != keySize {
		return 0, fmt.Errorf("backend: key length expected %d, got %d", keySize, len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

// encodeEntry writes value and update-count. Locks are never persisted.
func encodeEntry(e cache.Entry) []byte {
	b := make([]byte, valueSize)
	binary.BigEndian.PutUint64(b[:8], uint64(e.Value))
	binary.BigEndian.PutUint64(b[8:], e.UpdateCount)
	return b
}

func decodeEntry(b []byte) (cache.Entry, error) {
	if len(b) != valueSize {
		return cache.Entry{}, fmt.Errorf("backend: value length expected %d, got %d", valueSize, len(b))
	}
	return cache.Entry{
		Value:       int64(binary.BigEndian.Uint64(b[:8])),
		UpdateCount: binary.BigEndian.Uint64(b[8:]),
	}, nil
}
