package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/transport"
)

func (c *Cluster) Network() *transport.Network { return c.nw }

func (c *Cluster) L1s() []cachepb.NodeID     { return c.l1s }
func (c *Cluster) L2s() []cachepb.NodeID     { return c.l2s }
func (c *Cluster) Clients() []cachepb.NodeID { return c.clients }

// IDs returns every node of the hierarchy, sorted.
func (c *Cluster) IDs() cachepb.NodeIDs {
	ids := make(cachepb.NodeIDs, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Sort(ids)
	return ids
}

// Role returns the role of id.
func (c *Cluster) Role(id cachepb.NodeID) (cachepb.NODE_ROLE, bool) {
	r, ok := c.roles[id]
	return r, ok
}

func (c *Cluster) step(ctx context.Context, msg cachepb.Message) error {
	nd, ok := c.nodes[msg.To]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownNode, msg.To)
	}
	return nd.Step(ctx, msg)
}

func (c *Cluster) client(id cachepb.NodeID) error {
	if r, ok := c.roles[id]; !ok || r != cachepb.NODE_ROLE_CLIENT {
		return fmt.Errorf("%w %q (not a client)", ErrUnknownNode, id)
	}
	return nil
}

// InstantiateWrite makes client write value to key through the
// second-level cache target.
func (c *Cluster) InstantiateWrite(ctx context.Context, client, target cachepb.NodeID, key, value int64, critical bool) error {
	if err := c.client(client); err != nil {
		return err
	}
	return c.step(ctx, cachepb.Message{
		Type:     cachepb.MESSAGE_TYPE_INSTANTIATE_WRITE,
		To:       client,
		Target:   target,
		Key:      key,
		Value:    value,
		Critical: critical,
	})
}

// InstantiateRead makes client read key through the second-level cache target.
func (c *Cluster) InstantiateRead(ctx context.Context, client, target cachepb.NodeID, key int64, critical bool) error {
	if err := c.client(client); err != nil {
		return err
	}
	return c.step(ctx, cachepb.Message{
		Type:     cachepb.MESSAGE_TYPE_INSTANTIATE_READ,
		To:       client,
		Target:   target,
		Key:      key,
		Critical: critical,
	})
}

// Crash crashes id. Clients ignore crashes.
func (c *Cluster) Crash(ctx context.Context, id cachepb.NodeID) error {
	return c.step(ctx, cachepb.Message{Type: cachepb.MESSAGE_TYPE_CRASH, To: id})
}

// Recover recovers id. A first-level cache also flushes its children.
func (c *Cluster) Recover(ctx context.Context, id cachepb.NodeID) error {
	return c.step(ctx, cachepb.Message{Type: cachepb.MESSAGE_TYPE_RECOVER, To: id})
}

// Status returns the status of id.
func (c *Cluster) Status(id cachepb.NodeID) (cache.Status, error) {
	nd, ok := c.nodes[id]
	if !ok {
		return cache.Status{}, fmt.Errorf("%w %q", ErrUnknownNode, id)
	}
	return nd.Status(), nil
}

// Statuses returns the status of every node, sorted by ID.
func (c *Cluster) Statuses() []cache.Status {
	ids := c.IDs()
	sts := make([]cache.Status, 0, len(ids))
	for _, id := range ids {
		sts = append(sts, c.nodes[id].Status())
	}
	return sts
}

// Stop stops every node. With a backend, the store's entries are
// saved before the file is closed.
func (c *Cluster) Stop() {
	var entries []cache.KeyEntry
	if nd, ok := c.nodes[StoreID]; ok {
		entries = nd.Status().Entries
	}
	for _, nd := range c.nodes {
		nd.Stop()
	}

	if c.be == nil {
		return
	}
	if len(entries) > 0 {
		if err := c.be.Save(entries); err != nil {
			logger.Warningf("cannot save store entries (%v)", err)
		} else {
			logger.Infof("saved %d entries to %s", len(entries), c.cfg.BackendPath)
		}
	}
	if err := c.be.Close(); err != nil {
		logger.Warningf("cannot close backend (%v)", err)
	}
	c.be = nil
}
