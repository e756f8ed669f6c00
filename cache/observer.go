package cache

import "github.com/gyuho/mlcache/cachepb"

// Observer receives one cachepb.Event per protocol step. Observe is called
// from every node goroutine, so implementations must be safe for concurrent use.
// Nothing in the hierarchy depends on what the Observer does with events.
type Observer interface {
	Observe(ev cachepb.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev cachepb.Event)

func (f ObserverFunc) Observe(ev cachepb.Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(cachepb.Event) {}
