package transport

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/pkg/xlog"
	cmap "github.com/orcaman/concurrent-map"
)

var logger = xlog.NewLogger("transport", xlog.INFO)

// DefaultInboxSize is the capacity of one node inbox.
// Messages sent to a full inbox are dropped.
const DefaultInboxSize = 4096

// connection is a directed pair of nodes. cachepb.None matches any node.
type connection struct {
	from, to cachepb.NodeID
}

type delay struct {
	d    time.Duration
	rate float64
}

// Network is an address table of node inboxes.
// It is safe for concurrent use.
type Network struct {
	inboxSize int

	// inboxes maps cachepb.NodeID to chan cachepb.Message.
	inboxes cmap.ConcurrentMap

	mu           sync.Mutex
	rand         *rand.Rand
	dropRates    map[connection]float64
	delays       map[connection]delay
	disconnected map[cachepb.NodeID]struct{}
	paused       bool

	delivered int64
	dropped   int64
}

// NewNetwork returns a Network whose inboxes hold inboxSize messages.
// A non-positive inboxSize selects DefaultInboxSize.
func NewNetwork(inboxSize int) *Network {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Network{
		inboxSize:    inboxSize,
		inboxes:      cmap.New(),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		dropRates:    make(map[connection]float64),
		delays:       make(map[connection]delay),
		disconnected: make(map[cachepb.NodeID]struct{}),
	}
}

// Inbox returns the inbox of id, creating it on first use.
func (nw *Network) Inbox(id cachepb.NodeID) <-chan cachepb.Message {
	nw.inboxes.SetIfAbsent(string(id), make(chan cachepb.Message, nw.inboxSize))
	v, _ := nw.inboxes.Get(string(id))
	return v.(chan cachepb.Message)
}

// Has returns true if id has an inbox.
func (nw *Network) Has(id cachepb.NodeID) bool {
	return nw.inboxes.Has(string(id))
}

// Members returns the nodes with an inbox, sorted.
func (nw *Network) Members() cachepb.NodeIDs {
	keys := nw.inboxes.Keys()
	ids := make(cachepb.NodeIDs, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, cachepb.NodeID(k))
	}
	sort.Sort(ids)
	return ids
}

// Send delivers msg to the inbox of msg.To. It never blocks.
// The message is lost when its destination has no inbox, when the inbox
// is full, or when an injected fault applies to the pair.
func (nw *Network) Send(msg cachepb.Message) {
	v, ok := nw.inboxes.Get(string(msg.To))
	if !ok {
		nw.lose(msg, "unknown destination")
		return
	}
	ch := v.(chan cachepb.Message)

	nw.mu.Lock()
	if nw.paused {
		nw.mu.Unlock()
		nw.lose(msg, "network paused")
		return
	}
	if nw.isDisconnected(msg.From, msg.To) {
		nw.mu.Unlock()
		nw.lose(msg, "disconnected")
		return
	}
	if rate := nw.dropRate(msg.From, msg.To); rate > 0 && nw.rand.Float64() < rate {
		nw.mu.Unlock()
		nw.lose(msg, "dropped by rate")
		return
	}
	var after time.Duration
	if dl, ok := nw.delayOf(msg.From, msg.To); ok && nw.rand.Float64() < dl.rate {
		after = dl.d
	}
	nw.mu.Unlock()

	if after > 0 {
		time.AfterFunc(after, func() { nw.deliver(ch, msg) })
		return
	}
	nw.deliver(ch, msg)
}

func (nw *Network) deliver(ch chan cachepb.Message, msg cachepb.Message) {
	select {
	case ch <- msg:
		atomic.AddInt64(&nw.delivered, 1)
	default:
		nw.lose(msg, "inbox full")
	}
}

func (nw *Network) lose(msg cachepb.Message, reason string) {
	atomic.AddInt64(&nw.dropped, 1)
	if reason == "inbox full" || reason == "unknown destination" {
		logger.Warningf("lost %s (%s)", cachepb.DescribeMessage(msg), reason)
		return
	}
	logger.Debugf("lost %s (%s)", cachepb.DescribeMessage(msg), reason)
}

// must be called with mu held
func (nw *Network) isDisconnected(from, to cachepb.NodeID) bool {
	if _, ok := nw.disconnected[from]; ok {
		return true
	}
	_, ok := nw.disconnected[to]
	return ok
}

// must be called with mu held
func (nw *Network) dropRate(from, to cachepb.NodeID) float64 {
	for _, c := range []connection{{from, to}, {from, cachepb.None}, {cachepb.None, to}} {
		if rate, ok := nw.dropRates[c]; ok {
			return rate
		}
	}
	return 0
}

// must be called with mu held
func (nw *Network) delayOf(from, to cachepb.NodeID) (delay, bool) {
	for _, c := range []connection{{from, to}, {from, cachepb.None}, {cachepb.None, to}} {
		if dl, ok := nw.delays[c]; ok {
			return dl, true
		}
	}
	return delay{}, false
}

// Drop loses messages from from to to with the probability rate.
// cachepb.None as from or to matches any node.
func (nw *Network) Drop(from, to cachepb.NodeID, rate float64) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.dropRates[connection{from, to}] = rate
}

// Delay holds back messages from from to to for d, with the probability rate.
// Delayed messages can overtake each other.
func (nw *Network) Delay(from, to cachepb.NodeID, d time.Duration, rate float64) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.delays[connection{from, to}] = delay{d: d, rate: rate}
}

// Disconnect loses every message from or to id.
func (nw *Network) Disconnect(id cachepb.NodeID) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.disconnected[id] = struct{}{}
}

// Connect undoes Disconnect.
func (nw *Network) Connect(id cachepb.NodeID) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	delete(nw.disconnected, id)
}

// Pause loses every message until Resume.
func (nw *Network) Pause() {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.paused = true
}

func (nw *Network) Resume() {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.paused = false
}

// RecoverAll removes every injected fault.
func (nw *Network) RecoverAll() {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.dropRates = make(map[connection]float64)
	nw.delays = make(map[connection]delay)
	nw.disconnected = make(map[cachepb.NodeID]struct{})
	nw.paused = false
}

// Stats returns the number of delivered and lost messages.
func (nw *Network) Stats() (delivered, dropped int64) {
	return atomic.LoadInt64(&nw.delivered), atomic.LoadInt64(&nw.dropped)
}
