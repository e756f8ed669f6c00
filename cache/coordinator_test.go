package cache

import (
	"fmt"
	"testing"

	"github.com/gyuho/mlcache/cachepb"
)

type decision struct {
	committed bool
	id        cachepb.ID
	key       int64
	value     int64
}

func newTestCoordinator(participants int, decisions *[]decision) *Coordinator {
	return NewCoordinator(
		func() int { return participants },
		func(id cachepb.ID, key, value int64) {
			*decisions = append(*decisions, decision{true, id, key, value})
		},
		func(id cachepb.ID, key int64) {
			*decisions = append(*decisions, decision{false, id, key, 0})
		},
	)
}

func Test_Coordinator_unanimity(t *testing.T) {
	var ds []decision
	c := newTestCoordinator(3, &ds)

	c.BeginRound(7, 1, 100)
	c.OnVote(7, 1, "a", true)
	c.OnVote(7, 1, "b", true)
	c.OnVote(7, 1, "b", true) // counted once
	if len(ds) != 0 {
		t.Fatalf("decided too early %+v", ds)
	}
	c.OnVote(7, 1, "c", true)

	if len(ds) != 1 || ds[0] != (decision{true, 7, 1, 100}) {
		t.Fatalf("unexpected decisions %+v", ds)
	}
	if _, active := c.Active(); active {
		t.Fatal("round must end on commit")
	}
}

// A single abort vote aborts the round wherever it arrives.
func Test_Coordinator_abort_any_order(t *testing.T) {
	for pos := 0; pos < 3; pos++ {
		var ds []decision
		c := newTestCoordinator(3, &ds)
		c.BeginRound(1, 2, 3)

		for i := 0; i < 3; i++ {
			c.OnVote(1, 2, cachepb.NodeID(fmt.Sprintf("p%d", i)), i != pos)
		}

		if len(ds) != 1 || ds[0].committed {
			t.Fatalf("#%d: expected one abort, got %+v", pos, ds)
		}
	}
}

func Test_Coordinator_stale_votes(t *testing.T) {
	var ds []decision
	c := newTestCoordinator(1, &ds)

	if c.OnVote(1, 1, "a", false) {
		t.Fatal("vote without a round must be ignored")
	}

	c.BeginRound(2, 1, 10)
	if c.OnVote(1, 1, "a", false) {
		t.Fatal("vote for another round must be ignored")
	}
	if c.OnVote(2, 9, "a", true) {
		t.Fatal("vote for another key must be ignored")
	}
	if len(ds) != 0 {
		t.Fatalf("unexpected decisions %+v", ds)
	}

	c.ResetRound()
	c.ResetRound()
	if c.OnVote(2, 1, "a", true) || len(ds) != 0 {
		t.Fatal("vote after reset must be ignored")
	}
}

func Test_Coordinator_no_participants(t *testing.T) {
	var ds []decision
	c := newTestCoordinator(0, &ds)
	c.BeginRound(4, 5, 6)

	if len(ds) != 1 || ds[0] != (decision{true, 4, 5, 6}) {
		t.Fatalf("unexpected decisions %+v", ds)
	}
	if _, active := c.Active(); active {
		t.Fatal("round must not stay active")
	}
}
