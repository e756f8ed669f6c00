package observe

import (
	"fmt"
	"sync"
	"time"

	"github.com/gyuho/mlcache/cachepb"
)

// Recorder keeps every observed event, for tests and scripted scenarios.
//
// (etcd pkg.testutil.RecorderBuffered)
type Recorder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []cachepb.Event
}

func NewRecorder() *Recorder {
	r := &Recorder{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Recorder) Observe(ev cachepb.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Events returns a copy of the events recorded so far.
func (r *Recorder) Events() []cachepb.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := make([]cachepb.Event, len(r.events))
	copy(cpy, r.events)
	return cpy
}

// Filter returns the recorded events that match.
func (r *Recorder) Filter(match func(cachepb.Event) bool) []cachepb.Event {
	var evs []cachepb.Event
	for _, ev := range r.Events() {
		if match(ev) {
			evs = append(evs, ev)
		}
	}
	return evs
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Wait waits until at least n recorded events match, or the timeout elapses.
func (r *Recorder) Wait(n int, match func(cachepb.Event) bool, timeout time.Duration) ([]cachepb.Event, error) {
	timedOut := false
	tm := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		timedOut = true
		r.mu.Unlock()
		r.cond.Broadcast()
	})
	defer tm.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		var evs []cachepb.Event
		for _, ev := range r.events {
			if match == nil || match(ev) {
				evs = append(evs, ev)
			}
		}
		if len(evs) >= n {
			return evs, nil
		}
		if timedOut {
			return evs, fmt.Errorf("len(events) = %d, expected >= %d", len(evs), n)
		}
		r.cond.Wait()
	}
}

// Received matches the events of node receiving a message of type tp.
func Received(node cachepb.NodeID, tp cachepb.MESSAGE_TYPE) func(cachepb.Event) bool {
	return func(ev cachepb.Event) bool {
		return ev.Node == node && ev.Operation == cachepb.OPERATION_RECEIVE && ev.Message.Type == tp
	}
}
