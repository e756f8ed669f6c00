package cache

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/gyuho/mlcache/cachepb"
)

const (
	// DefaultClientTimeout is slightly longer than DefaultCacheTimeout,
	// so that a cache gives up on its upstream before its client does.
	DefaultClientTimeout = 8 * time.Second

	DefaultCacheTimeout = 4 * time.Second
	DefaultStoreTimeout = 13 * time.Second

	// DefaultMaxRetryCount bounds the retries of one read or write.
	DefaultMaxRetryCount = 3
)

// Config contains the parameters to start a cache node.
type Config struct {
	// Logger implements system logging for the node.
	// Defaults to the package logger (see SetLogger).
	Logger Logger

	// Observer receives the protocol events of the node.
	// Defaults to discarding them.
	Observer Observer

	// ID is the address of the node in the hierarchy.
	ID cachepb.NodeID

	// Index is unique per node, and seeds the correlation ID generator.
	Index uint16

	// ClientTimeout is how long a client waits for a reply
	// before it retries against another second-level cache.
	ClientTimeout time.Duration

	// CacheTimeout is how long a cache waits for its upstream,
	// and how long a first-level cache waits for its children's votes.
	CacheTimeout time.Duration

	// StoreTimeout is how long the authoritative store waits
	// for the first-level votes of a critical write.
	StoreTimeout time.Duration

	// DecisionTimeout is how long a participant that voted ok
	// keeps the key locked while waiting for commit or abort.
	// Defaults to twice StoreTimeout.
	DecisionTimeout time.Duration

	// MaxRetryCount is the number of retries after the first
	// attempt of a read or write, before it is abandoned.
	MaxRetryCount int

	// Data are the initial entries of the authoritative store.
	// Other roles ignore it.
	Data []KeyEntry

	// Rand picks retry targets. Only the node goroutine uses it.
	// Defaults to a source seeded from ID and the current time.
	Rand *rand.Rand
}

func (c *Config) validate() error {
	if c.ID == cachepb.None {
		return errors.New("cannot use empty ID")
	}

	if c.Logger == nil {
		c.Logger = defaultLogger
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}

	if c.ClientTimeout == 0 {
		c.ClientTimeout = DefaultClientTimeout
	}
	if c.CacheTimeout == 0 {
		c.CacheTimeout = DefaultCacheTimeout
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.DecisionTimeout == 0 {
		c.DecisionTimeout = 2 * c.StoreTimeout
	}
	if c.ClientTimeout < 0 || c.CacheTimeout < 0 || c.StoreTimeout < 0 || c.DecisionTimeout < 0 {
		return fmt.Errorf("negative timeout (client %v, cache %v, store %v, decision %v)",
			c.ClientTimeout, c.CacheTimeout, c.StoreTimeout, c.DecisionTimeout)
	}

	if c.MaxRetryCount == 0 {
		c.MaxRetryCount = DefaultMaxRetryCount
	}
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("MaxRetryCount must be positive (got %d)", c.MaxRetryCount)
	}

	if c.Rand == nil {
		h := fnv.New64a()
		h.Write([]byte(c.ID))
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(h.Sum64())))
	}
	return nil
}
