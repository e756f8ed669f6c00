package cache

import (
	"context"
	"time"

	"github.com/gyuho/mlcache/cachepb"
)

// Transport moves messages between nodes.
type Transport interface {
	// Send delivers msg to msg.To, or loses it. It never blocks for long.
	Send(msg cachepb.Message)

	// Inbox returns the channel of messages addressed to id.
	Inbox(id cachepb.NodeID) <-chan cachepb.Message
}

// Node is a running cache node.
type Node interface {
	// ID returns the address of the node.
	ID() cachepb.NodeID

	// Step hands msg to the node, as if it arrived from the network.
	Step(ctx context.Context, msg cachepb.Message) error

	// Status returns the current state of the node.
	Status() Status

	// Stop stops the node. Timeouts armed earlier are discarded.
	Stop()
}

type node struct {
	id cachepb.NodeID
	lg Logger

	transport Transport

	incomingMessageCh chan cachepb.Message
	timeoutCh         chan cachepb.Message

	stopCh chan struct{}
	doneCh chan struct{}
	// <-nd.stopCh ➝ close(doneCh)

	statusChCh chan chan Status
}

func newStateMachine(c Config, role cachepb.NODE_ROLE) (stateMachine, error) {
	switch role {
	case cachepb.NODE_ROLE_CLIENT:
		return newClient(c), nil
	case cachepb.NODE_ROLE_L2:
		return newL2Cache(c), nil
	case cachepb.NODE_ROLE_L1:
		return newL1Cache(c), nil
	case cachepb.NODE_ROLE_STORE:
		return newDatabase(c), nil
	}
	return nil, ErrUnknownRole
}

// StartNode starts a node of the given role that receives from
// its inbox in tr, and sends through tr.
func StartNode(c Config, role cachepb.NODE_ROLE, tr Transport) (Node, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	sm, err := newStateMachine(c, role)
	if err != nil {
		return nil, err
	}

	nd := &node{
		id:                c.ID,
		lg:                c.Logger,
		transport:         tr,
		incomingMessageCh: make(chan cachepb.Message),
		timeoutCh:         make(chan cachepb.Message),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		statusChCh:        make(chan chan Status),
	}
	go nd.run(sm, tr.Inbox(c.ID))

	c.Logger.Infof("started %s %s", role, c.ID)
	return nd, nil
}

func (nd *node) ID() cachepb.NodeID { return nd.id }

func (nd *node) run(sm stateMachine, inbox <-chan cachepb.Message) {
	for {
		select {
		case msg := <-inbox:
			nd.stepAndSend(sm, msg)

		case msg := <-nd.incomingMessageCh:
			nd.stepAndSend(sm, msg)

		case msg := <-nd.timeoutCh:
			nd.stepAndSend(sm, msg)

		case ch := <-nd.statusChCh:
			ch <- sm.status()

		case <-nd.stopCh:
			close(nd.doneCh)
			return
		}
	}
}

// stepAndSend steps sm, then sends what sm put in its mailbox
// and arms its timeouts.
func (nd *node) stepAndSend(sm stateMachine, msg cachepb.Message) {
	if err := sm.Step(msg); err != nil {
		nd.lg.Warningf("%s failed to step %s (%v)", nd.id, cachepb.DescribeMessage(msg), err)
	}

	for _, m := range sm.readAndClearMailbox() {
		nd.transport.Send(m)
	}

	for _, t := range sm.readAndClearTimers() {
		tmsg := t.msg
		time.AfterFunc(t.after, func() {
			select {
			case nd.timeoutCh <- tmsg:
			case <-nd.doneCh:
			}
		})
	}
}

func (nd *node) Step(ctx context.Context, msg cachepb.Message) error {
	if msg.To == cachepb.None {
		msg.To = nd.id
	}
	select {
	case nd.incomingMessageCh <- msg:
		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-nd.doneCh:
		return ErrStopped
	}
}

func (nd *node) Status() Status {
	ch := make(chan Status)
	select {
	case nd.statusChCh <- ch:
		return <-ch
	case <-nd.doneCh:
		return Status{ID: nd.id}
	}
}

func (nd *node) Stop() {
	select {
	case nd.stopCh <- struct{}{}:
		// not stopped yet, so trigger stop

	case <-nd.doneCh: // node has already been stopped, no need to do anything
		return
	}

	// wait until Stop has been acknowledged by node.run()
	<-nd.doneCh
}
