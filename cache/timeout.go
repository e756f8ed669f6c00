package cache

import (
	"time"

	"github.com/gyuho/mlcache/cachepb"
)

// timer is a self-addressed TIMEOUT waiting to be delivered.
type timer struct {
	msg   cachepb.Message
	after time.Duration
}

// arm schedules a TIMEOUT for the request msg that was sent to unreachable.
// kind tells the handler which wait expired; it is the type of the message
// the node is waiting on a reply for. Armed timeouts are never cancelled,
// so each handler first checks that its conversation or round is still open.
func (b *base) arm(msg cachepb.Message, unreachable cachepb.NodeID, kind cachepb.MESSAGE_TYPE, attempt uint32, after time.Duration) {
	orig := msg
	b.timers = append(b.timers, timer{
		msg: cachepb.Message{
			Type:         cachepb.MESSAGE_TYPE_TIMEOUT,
			From:         b.id,
			To:           b.id,
			ID:           msg.ID,
			Key:          msg.Key,
			OriginalType: kind,
			Unreachable:  unreachable,
			Original:     &orig,
			Attempt:      attempt,
		},
		after: after,
	})
}

func (b *base) readAndClearTimers() []timer {
	ts := b.timers
	b.timers = nil
	return ts
}

// sendRead sends the request of conv to to, and arms its timeout.
func (b *base) sendRead(conv *readConversation, to cachepb.NodeID, after time.Duration) {
	conv.attempt++
	conv.tried = append(conv.tried, to)

	req := conv.request
	req.To = to
	b.sendToMailbox(req)
	b.arm(req, to, req.Type, conv.attempt, after)
}

// sendWrite sends the request of conv to to, and arms its timeout.
func (b *base) sendWrite(conv *writeConversation, to cachepb.NodeID, after time.Duration) {
	conv.attempt++
	conv.tried = append(conv.tried, to)

	req := conv.request
	req.To = to
	b.sendToMailbox(req)
	b.arm(req, to, req.Type, conv.attempt, after)
}

// readTimedOut returns the read a TIMEOUT is for, unless it is stale.
func (b *base) readTimedOut(msg cachepb.Message) (*readConversation, bool) {
	conv, ok := b.tracker.read(msg.Key)
	if !ok || conv.attempt != msg.Attempt {
		return nil, false
	}
	return conv, true
}

// writeTimedOut returns the write a TIMEOUT is for, unless it is stale.
func (b *base) writeTimedOut(msg cachepb.Message) (*writeConversation, bool) {
	conv, ok := b.tracker.write(msg.ID)
	if !ok || conv.attempt != msg.Attempt {
		return nil, false
	}
	return conv, true
}

// retryRead resends a timed-out read to another member of group,
// or abandons it once the retries run out.
func (b *base) retryRead(msg cachepb.Message, group []cachepb.NodeID, after time.Duration) {
	if _, ok := b.readTimedOut(msg); !ok {
		return
	}
	conv, ok := b.tracker.NextReadRetry(msg.Key)
	if !ok {
		b.observe(cachepb.OPERATION_ABANDON, *msg.Original, "read of key %d abandoned after %d retries", msg.Key, conv.retryCount)
		b.lg.Infof("%s abandoned read of key %d (waiting %v)", b.describe(), msg.Key, append(conv.senders, conv.criticalSenders...))
		return
	}
	b.sendRead(conv, b.pickRetryTarget(group, conv.tried, msg.Unreachable), after)
}

// retryWrite resends a timed-out write to another member of group,
// or abandons it once the retries run out.
func (b *base) retryWrite(msg cachepb.Message, group []cachepb.NodeID, after time.Duration) {
	if _, ok := b.writeTimedOut(msg); !ok {
		return
	}
	conv, ok := b.tracker.NextWriteRetry(msg.ID)
	if !ok {
		b.observe(cachepb.OPERATION_ABANDON, *msg.Original, "write of key %d abandoned after %d retries", msg.Key, conv.retryCount)
		b.lg.Infof("%s abandoned write %s of key %d", b.describe(), msg.ID, msg.Key)
		return
	}
	b.sendWrite(conv, b.pickRetryTarget(group, conv.tried, msg.Unreachable), after)
}

// pickRetryTarget picks a random member of group that this operation has
// not tried yet. Once every member was tried, only failed is excluded.
// A group with failed as its only member gets failed back.
func (b *base) pickRetryTarget(group, tried []cachepb.NodeID, failed cachepb.NodeID) cachepb.NodeID {
	var candidates []cachepb.NodeID
	for _, id := range group {
		if !cachepb.NodeIDs(tried).Contains(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		for _, id := range group {
			if id != failed {
				candidates = append(candidates, id)
			}
		}
	}
	if len(candidates) == 0 {
		return failed
	}
	return candidates[b.rand.Intn(len(candidates))]
}
