package cache

import "github.com/gyuho/mlcache/cachepb"

// Round is one critical-write attempt collected by a Coordinator.
type Round struct {
	ID    cachepb.ID
	Key   int64
	Value int64

	votes        map[cachepb.NodeID]bool
	participants int
}

// Coordinator collects the votes of one commit round at a time.
// Unanimity commits, and the first abort vote aborts.
type Coordinator struct {
	participants func() int

	onAllVotedOk func(id cachepb.ID, key, value int64)
	onAbort      func(id cachepb.ID, key int64)

	active bool
	r      Round
}

// NewCoordinator returns a Coordinator whose rounds need a vote from each
// of participants() voters.
func NewCoordinator(
	participants func() int,
	onAllVotedOk func(id cachepb.ID, key, value int64),
	onAbort func(id cachepb.ID, key int64),
) *Coordinator {
	return &Coordinator{
		participants: participants,
		onAllVotedOk: onAllVotedOk,
		onAbort:      onAbort,
	}
}

// BeginRound starts the round id, replacing any active round.
// A round without participants completes immediately.
func (c *Coordinator) BeginRound(id cachepb.ID, key, value int64) {
	c.active = true
	c.r = Round{
		ID:           id,
		Key:          key,
		Value:        value,
		votes:        make(map[cachepb.NodeID]bool),
		participants: c.participants(),
	}
	if c.r.participants == 0 {
		c.ResetRound()
		c.onAllVotedOk(id, key, value)
	}
}

// OnVote counts the vote of voter. Votes for anything but the active
// round are ignored, as are repeated ok votes from the same voter.
// It returns true if the vote was counted.
func (c *Coordinator) OnVote(id cachepb.ID, key int64, voter cachepb.NodeID, ok bool) bool {
	if !c.active || c.r.ID != id || c.r.Key != key {
		return false
	}

	if !ok {
		c.ResetRound()
		c.onAbort(id, key)
		return true
	}

	if c.r.votes[voter] {
		return false
	}
	c.r.votes[voter] = true

	if len(c.r.votes) >= c.r.participants {
		value := c.r.Value
		c.ResetRound()
		c.onAllVotedOk(id, key, value)
	}
	return true
}

// ResetRound ends the active round without deciding. It is idempotent.
func (c *Coordinator) ResetRound() {
	c.active = false
	c.r = Round{}
}

// Active returns the active round, if any.
func (c *Coordinator) Active() (Round, bool) {
	return c.r, c.active
}
