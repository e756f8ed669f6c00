package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gyuho/mlcache/cache"
	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/cluster"
	"github.com/gyuho/mlcache/observe"
	"github.com/gyuho/mlcache/pkg/scheduleutil"
)

// scenario runs against its own hierarchy of two first-level caches,
// each with two second-level caches, and two clients.
type scenario struct {
	name string
	run  func(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error
}

var scenarios = []scenario{
	{"plain write refills every first-level cache", scenarioPlainWrite},
	{"read miss is filled by the store", scenarioReadMiss},
	{"concurrent critical writes commit at most once", scenarioConcurrentCriticalWrites},
	{"first-level crash aborts a critical write", scenarioCrashDuringCriticalWrite},
	{"second-level read is abandoned after bounded retries", scenarioBoundedReadRetries},
}

// runScenarios runs every scenario in order on a FIFO scheduler.
func runScenarios(base cluster.Config) []scheduleutil.Result {
	s := scheduleutil.NewSchedulerFIFO()
	defer s.Stop()

	for _, sc := range scenarios {
		sc := sc
		s.Schedule(scheduleutil.Job{
			Name: sc.name,
			Run: func(ctx context.Context) error {
				return runScenario(ctx, base, sc)
			},
		})
	}
	return s.WaitFinish(len(scenarios))
}

func runScenario(ctx context.Context, base cluster.Config, sc scenario) error {
	cfg := base
	cfg.L1Num, cfg.L2PerL1, cfg.ClientNum = 2, 2, 2
	cfg.BackendPath = ""

	rec := observe.NewRecorder()
	if cfg.Observer != nil {
		cfg.Observer = observe.Multi(cfg.Observer, rec)
	} else {
		cfg.Observer = rec
	}

	c, err := cluster.Start(cfg)
	if err != nil {
		return err
	}
	defer c.Stop()

	ctx, cancel := context.WithTimeout(ctx, scenarioTimeout(cfg))
	defer cancel()
	return sc.run(ctx, c, rec)
}

// scenarioTimeout covers every retry of a client, and one full round
// of a critical write.
func scenarioTimeout(cfg cluster.Config) time.Duration {
	client := cfg.ClientTimeout
	if client == 0 {
		client = cache.DefaultClientTimeout
	}
	store := cfg.StoreTimeout
	if store == 0 {
		store = cache.DefaultStoreTimeout
	}
	return time.Duration(cache.DefaultMaxRetryCount+1)*client + 3*store
}

// waitStatus polls the status of id until cond holds.
func waitStatus(ctx context.Context, c *cluster.Cluster, id cachepb.NodeID, cond func(cache.Status) bool) (cache.Status, error) {
	for {
		st, err := c.Status(id)
		if err != nil {
			return st, err
		}
		if cond(st) {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("%s did not reach the expected state (%v)", id, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitEvents(ctx context.Context, rec *observe.Recorder, n int, match func(cachepb.Event) bool) ([]cachepb.Event, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Now().Add(time.Minute)
	}
	return rec.Wait(n, match, time.Until(dl))
}

func scenarioPlainWrite(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error {
	const key, value = 5, 42
	before, err := c.Status(cluster.StoreID)
	if err != nil {
		return err
	}
	e, _ := before.Get(key)

	if err = c.InstantiateWrite(ctx, cluster.ClientID(0), cluster.L2ID(0), key, value, false); err != nil {
		return err
	}
	if _, err = waitStatus(ctx, c, cluster.StoreID, func(st cache.Status) bool {
		got, _ := st.Get(key)
		return got.Value == value && got.UpdateCount == e.UpdateCount+1
	}); err != nil {
		return err
	}

	for _, l1 := range c.L1s() {
		refills, err := waitEvents(ctx, rec, 1, observe.Received(l1, cachepb.MESSAGE_TYPE_REFILL))
		if err != nil {
			return fmt.Errorf("%s got no refill (%v)", l1, err)
		}
		if uc := refills[0].Message.UpdateCount; uc != e.UpdateCount+1 {
			return fmt.Errorf("%s refill update-count expected %d, got %d", l1, e.UpdateCount+1, uc)
		}
	}

	confirms, err := waitEvents(ctx, rec, 1, observe.Received(cluster.ClientID(0), cachepb.MESSAGE_TYPE_WRITE_CONFIRM))
	if err != nil {
		return err
	}
	if v := confirms[0].Message.Value; v != value {
		return fmt.Errorf("confirmed value expected %d, got %d", value, v)
	}
	return nil
}

func scenarioReadMiss(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error {
	const key = 7
	st, err := c.Status(cluster.StoreID)
	if err != nil {
		return err
	}
	want, ok := st.Get(key)
	if !ok {
		return fmt.Errorf("store does not hold key %d", key)
	}

	if err = c.InstantiateRead(ctx, cluster.ClientID(0), cluster.L2ID(0), key, false); err != nil {
		return err
	}
	_, err = waitStatus(ctx, c, cluster.ClientID(0), func(st cache.Status) bool {
		got, ok := st.Get(key)
		return ok && got.Value == want.Value && got.UpdateCount == want.UpdateCount
	})
	return err
}

func scenarioConcurrentCriticalWrites(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error {
	const key = 3
	// both second-level caches are under L1-0
	if err := c.InstantiateWrite(ctx, cluster.ClientID(0), cluster.L2ID(0), key, 100, true); err != nil {
		return err
	}
	if err := c.InstantiateWrite(ctx, cluster.ClientID(1), cluster.L2ID(1), key, 200, true); err != nil {
		return err
	}

	// both clients resolve their write, with a confirm or an abort
	resolved := func(ev cachepb.Event) bool {
		if ev.Operation != cachepb.OPERATION_RECEIVE || ev.Message.Key != key {
			return false
		}
		if ev.Node != cluster.ClientID(0) && ev.Node != cluster.ClientID(1) {
			return false
		}
		tp := ev.Message.Type
		return tp == cachepb.MESSAGE_TYPE_WRITE_CONFIRM || (tp == cachepb.MESSAGE_TYPE_ERROR && ev.Message.ErrorKind == cachepb.ERROR_KIND_VOTE_ABORT)
	}
	if _, err := waitEvents(ctx, rec, 2, resolved); err != nil {
		return err
	}

	decisions := rec.Filter(func(ev cachepb.Event) bool {
		return ev.Node == cluster.StoreID && ev.Operation == cachepb.OPERATION_MULTICAST &&
			(ev.Message.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_COMMIT || ev.Message.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT)
	})
	decided := make(map[cachepb.ID]cachepb.MESSAGE_TYPE)
	for _, ev := range decisions {
		if tp, ok := decided[ev.Message.ID]; ok && tp != ev.Message.Type {
			return fmt.Errorf("round %s both committed and aborted", ev.Message.ID)
		}
		if _, ok := decided[ev.Message.ID]; ok {
			return fmt.Errorf("round %s decided twice", ev.Message.ID)
		}
		decided[ev.Message.ID] = ev.Message.Type
	}

	st, err := waitStatus(ctx, c, cluster.StoreID, func(st cache.Status) bool {
		e, _ := st.Get(key)
		return st.ActiveRound == 0 && !e.Locked
	})
	if err != nil {
		return err
	}
	final, _ := st.Get(key)
	for _, l1 := range c.L1s() {
		if _, err = waitStatus(ctx, c, l1, func(st cache.Status) bool {
			e, ok := st.Get(key)
			return st.ActiveRound == 0 && (!ok || (!e.Locked && e.UpdateCount <= final.UpdateCount))
		}); err != nil {
			return err
		}
	}
	return nil
}

func scenarioCrashDuringCriticalWrite(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error {
	const key = 9
	crashed := cluster.L1ID(1)
	before, err := c.Status(cluster.StoreID)
	if err != nil {
		return err
	}
	e, _ := before.Get(key)

	// L1-1 locks and asks its children, but never hears their votes
	for _, l2 := range []cachepb.NodeID{cluster.L2ID(2), cluster.L2ID(3)} {
		c.Network().Drop(l2, crashed, 1)
	}
	defer c.Network().RecoverAll()

	if err = c.InstantiateWrite(ctx, cluster.ClientID(0), cluster.L2ID(0), key, 999, true); err != nil {
		return err
	}
	if _, err = waitEvents(ctx, rec, 1, func(ev cachepb.Event) bool {
		return ev.Node == crashed && ev.Operation == cachepb.OPERATION_MULTICAST && ev.Message.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_REQUEST
	}); err != nil {
		return err
	}
	if err = c.Crash(ctx, crashed); err != nil {
		return err
	}

	if _, err = waitEvents(ctx, rec, 1, func(ev cachepb.Event) bool {
		return ev.Node == cluster.StoreID && ev.Operation == cachepb.OPERATION_MULTICAST && ev.Message.Type == cachepb.MESSAGE_TYPE_CRITICAL_WRITE_ABORT
	}); err != nil {
		return err
	}

	for _, id := range c.IDs() {
		if id == crashed {
			continue
		}
		if _, err = waitStatus(ctx, c, id, func(st cache.Status) bool {
			got, _ := st.Get(key)
			return !got.Locked
		}); err != nil {
			return err
		}
	}
	after, err := c.Status(cluster.StoreID)
	if err != nil {
		return err
	}
	if got, _ := after.Get(key); got != e {
		return fmt.Errorf("store entry expected %+v after abort, got %+v", e, got)
	}
	return c.Recover(ctx, crashed)
}

func scenarioBoundedReadRetries(ctx context.Context, c *cluster.Cluster, rec *observe.Recorder) error {
	const key = 11
	l2 := cluster.L2ID(0)

	// everything L2-0 sends is lost
	c.Network().Drop(l2, cachepb.None, 1)
	defer c.Network().RecoverAll()

	if err := c.InstantiateRead(ctx, cluster.ClientID(0), l2, key, false); err != nil {
		return err
	}
	if _, err := waitEvents(ctx, rec, 1, func(ev cachepb.Event) bool {
		return ev.Node == l2 && ev.Operation == cachepb.OPERATION_ABANDON && ev.Message.Type == cachepb.MESSAGE_TYPE_READ
	}); err != nil {
		return err
	}

	sends := rec.Filter(func(ev cachepb.Event) bool {
		return ev.Node == l2 && ev.Operation == cachepb.OPERATION_SEND && cachepb.IsReadMessage(ev.Message.Type)
	})
	if len(sends) != cache.DefaultMaxRetryCount+1 {
		return fmt.Errorf("%s sent %d reads, expected %d", l2, len(sends), cache.DefaultMaxRetryCount+1)
	}
	replies := rec.Filter(func(ev cachepb.Event) bool {
		return ev.Node == l2 && ev.Operation == cachepb.OPERATION_SEND && ev.Message.Type == cachepb.MESSAGE_TYPE_READ_REPLY
	})
	if len(replies) != 0 {
		return fmt.Errorf("%s replied %d times after abandoning", l2, len(replies))
	}
	_, err := waitStatus(ctx, c, l2, func(st cache.Status) bool { return st.PendingReads == 0 })
	return err
}
