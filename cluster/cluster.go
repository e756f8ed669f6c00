package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/gyuho/mlcache/backend"
	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/observe"
	"github.com/gyuho/mlcache/pkg/xlog"
	"github.com/gyuho/mlcache/transport"
)

var logger = xlog.NewLogger("cluster", xlog.INFO)

// ErrUnknownNode is returned for an ID that is not in the hierarchy.
var ErrUnknownNode = errors.New("cluster: unknown node")

// StoreID is the address of the authoritative store.
const StoreID = cachepb.NodeID("store")

func L1ID(i int) cachepb.NodeID     { return cachepb.NodeID(fmt.Sprintf("L1-%d", i)) }
func L2ID(i int) cachepb.NodeID     { return cachepb.NodeID(fmt.Sprintf("L2-%d", i)) }
func ClientID(i int) cachepb.NodeID { return cachepb.NodeID(fmt.Sprintf("client-%d", i)) }

// Cluster is a running hierarchy on one in-process network.
type Cluster struct {
	cfg Config

	nw *transport.Network
	be *backend.Backend

	nodes map[cachepb.NodeID]cache.Node
	roles map[cachepb.NodeID]cachepb.NODE_ROLE

	l1s     []cachepb.NodeID
	l2s     []cachepb.NodeID
	clients []cachepb.NodeID
}

// Start starts every node of the hierarchy, and delivers the joins.
func Start(cfg Config) (*Cluster, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Cluster{
		cfg:   cfg,
		nw:    transport.NewNetwork(cfg.InboxSize),
		nodes: make(map[cachepb.NodeID]cache.Node),
		roles: make(map[cachepb.NodeID]cachepb.NODE_ROLE),
	}
	rnd := rand.New(rand.NewSource(cfg.RandSeed))

	data := cfg.Data
	if cfg.BackendPath != "" {
		be, err := backend.Open(cfg.BackendPath, 0, 0)
		if err != nil {
			return nil, err
		}
		c.be = be
		if len(data) == 0 {
			if data, err = be.Load(); err != nil {
				c.Stop()
				return nil, err
			}
			if len(data) > 0 {
				logger.Infof("loaded %d entries from %s", len(data), cfg.BackendPath)
			}
		}
	}
	if len(data) == 0 {
		data = seed(rnd, cfg.SeedNum, cfg.MaxSeedValue, cfg.MaxSeedUpdateCount)
		logger.Infof("seeded %d entries", len(data))
	}

	var joins []cachepb.Message
	storeCfg := c.nodeConfig(StoreID, rnd)
	storeCfg.Data = data
	if c.be != nil {
		if storeCfg.Observer != nil {
			storeCfg.Observer = observe.Multi(storeCfg.Observer, backend.NewWriter(c.be, StoreID))
		} else {
			storeCfg.Observer = backend.NewWriter(c.be, StoreID)
		}
	}
	if err := c.start(storeCfg, cachepb.NODE_ROLE_STORE); err != nil {
		c.Stop()
		return nil, err
	}

	for i := 0; i < cfg.L1Num; i++ {
		l1 := L1ID(i)
		c.l1s = append(c.l1s, l1)
		if err := c.start(c.nodeConfig(l1, rnd), cachepb.NODE_ROLE_L1); err != nil {
			c.Stop()
			return nil, err
		}

		var children []cachepb.NodeID
		for j := 0; j < cfg.L2PerL1; j++ {
			l2 := L2ID(len(c.l2s))
			c.l2s = append(c.l2s, l2)
			children = append(children, l2)
			if err := c.start(c.nodeConfig(l2, rnd), cachepb.NODE_ROLE_L2); err != nil {
				c.Stop()
				return nil, err
			}
			joins = append(joins,
				join(l2, cachepb.JOIN_ROLE_PARENT, l1),
				join(l2, cachepb.JOIN_ROLE_STORE, StoreID),
			)
		}
		joins = append(joins,
			join(l1, cachepb.JOIN_ROLE_CHILDREN, children...),
			join(l1, cachepb.JOIN_ROLE_STORE, StoreID),
		)
	}
	joins = append(joins, join(StoreID, cachepb.JOIN_ROLE_CHILDREN, c.l1s...))

	for k := 0; k < cfg.ClientNum; k++ {
		cl := ClientID(k)
		c.clients = append(c.clients, cl)
		if err := c.start(c.nodeConfig(cl, rnd), cachepb.NODE_ROLE_CLIENT); err != nil {
			c.Stop()
			return nil, err
		}
		joins = append(joins, join(cl, cachepb.JOIN_ROLE_PARENT, c.l2s...))
	}

	for _, m := range joins {
		if err := c.step(context.Background(), m); err != nil {
			c.Stop()
			return nil, err
		}
	}

	logger.Infof("started %d first-level caches, %d second-level caches, %d clients", len(c.l1s), len(c.l2s), len(c.clients))
	return c, nil
}

func (c *Cluster) nodeConfig(id cachepb.NodeID, rnd *rand.Rand) cache.Config {
	return cache.Config{
		Logger:        c.cfg.Logger,
		Observer:      c.cfg.Observer,
		ID:            id,
		Index:         uint16(len(c.nodes) + 1),
		ClientTimeout: c.cfg.ClientTimeout,
		CacheTimeout:  c.cfg.CacheTimeout,
		StoreTimeout:  c.cfg.StoreTimeout,
		Rand:          rand.New(rand.NewSource(rnd.Int63())),
	}
}

func (c *Cluster) start(cfg cache.Config, role cachepb.NODE_ROLE) error {
	nd, err := cache.StartNode(cfg, role, c.nw)
	if err != nil {
		return fmt.Errorf("cluster: cannot start %s (%w)", cfg.ID, err)
	}
	c.nodes[cfg.ID] = nd
	c.roles[cfg.ID] = role
	return nil
}

func join(to cachepb.NodeID, role cachepb.JOIN_ROLE, group ...cachepb.NodeID) cachepb.Message {
	return cachepb.Message{Type: cachepb.MESSAGE_TYPE_JOIN, To: to, JoinRole: role, Group: group}
}

// seed returns keys 0 to n-1 with random values and update-counts.
func seed(rnd *rand.Rand, n int, maxValue int64, maxUpdateCount uint64) []cache.KeyEntry {
	entries := make([]cache.KeyEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, cache.KeyEntry{
			Key: int64(i),
			Entry: cache.Entry{
				Value:       rnd.Int63n(maxValue),
				UpdateCount: uint64(rnd.Int63n(int64(maxUpdateCount))) + 1,
			},
		})
	}
	return entries
}
