package cluster

import (
	"fmt"
	"time"

	"github.com/gyuho/mlcache/cache"
)

const (
	DefaultSeedNum            = 100
	DefaultMaxSeedValue       = 1000
	DefaultMaxSeedUpdateCount = 9
)

// Config describes a hierarchy to start.
type Config struct {
	// L1Num is the number of first-level caches under the store.
	L1Num int
	// L2PerL1 is the number of second-level caches under each first-level cache.
	L2PerL1 int
	// ClientNum is the number of clients. Every client knows every
	// second-level cache.
	ClientNum int

	// Data are the initial entries of the store. When empty, the store
	// is loaded from BackendPath, or seeded with random entries.
	Data []cache.KeyEntry

	// SeedNum keys 0 to SeedNum-1 are seeded with values in [0, MaxSeedValue)
	// and update-counts in [1, MaxSeedUpdateCount].
	SeedNum            int
	MaxSeedValue       int64
	MaxSeedUpdateCount uint64
	// RandSeed makes seeding and retry targets reproducible. Zero uses the clock.
	RandSeed int64

	// BackendPath is an optional bolt file. The store is loaded from it
	// when Data is empty, its commits are written through to it, and
	// its contents are saved to it on Stop.
	BackendPath string

	ClientTimeout time.Duration
	CacheTimeout  time.Duration
	StoreTimeout  time.Duration

	// InboxSize is the capacity of each node inbox.
	InboxSize int

	Logger   cache.Logger
	Observer cache.Observer
}

func (c *Config) validate() error {
	if c.L1Num < 1 {
		return fmt.Errorf("cluster: need at least one first-level cache (got %d)", c.L1Num)
	}
	if c.L2PerL1 < 1 {
		return fmt.Errorf("cluster: need at least one second-level cache per first-level cache (got %d)", c.L2PerL1)
	}
	if c.ClientNum < 0 {
		return fmt.Errorf("cluster: negative client number %d", c.ClientNum)
	}

	if c.SeedNum == 0 {
		c.SeedNum = DefaultSeedNum
	}
	if c.MaxSeedValue == 0 {
		c.MaxSeedValue = DefaultMaxSeedValue
	}
	if c.MaxSeedUpdateCount == 0 {
		c.MaxSeedUpdateCount = DefaultMaxSeedUpdateCount
	}
	if c.SeedNum < 0 || c.MaxSeedValue < 0 {
		return fmt.Errorf("cluster: negative seed options (%d keys, max value %d)", c.SeedNum, c.MaxSeedValue)
	}

	if c.RandSeed == 0 {
		c.RandSeed = time.Now().UnixNano()
	}
	return nil
}
