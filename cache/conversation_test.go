package cache

import (
	"reflect"
	"testing"

	"github.com/gyuho/mlcache/cachepb"
)

func Test_Tracker_BeginRead(t *testing.T) {
	tr := NewTracker(3)

	if !tr.BeginRead(5, "client-0", false) {
		t.Fatal("first reader must fetch")
	}
	if tr.BeginRead(5, "client-1", false) {
		t.Fatal("second reader must not fetch")
	}
	if tr.BeginRead(5, "client-1", false) {
		t.Fatal("repeated reader must not fetch")
	}
	if !tr.BeginRead(5, "client-2", true) {
		t.Fatal("critical reader must fetch again when joining a plain read")
	}
	if tr.BeginRead(5, "client-3", true) {
		t.Fatal("critical reader must not fetch twice")
	}
	if !tr.IsReadPending(5) || tr.IsReadPending(6) {
		t.Fatal("unexpected pending reads")
	}

	senders := tr.ResolveRead(5)
	w := []cachepb.NodeID{"client-0", "client-1", "client-2", "client-3"}
	if !reflect.DeepEqual(senders, w) {
		t.Fatalf("senders expected %v, got %v", w, senders)
	}
	if tr.IsReadPending(5) {
		t.Fatal("read of key 5 must be cleared")
	}
	if senders = tr.ResolveRead(5); senders != nil {
		t.Fatalf("expected no senders, got %v", senders)
	}
}

func Test_Tracker_ResolveFill(t *testing.T) {
	tests := []struct {
		plain, crit []cachepb.NodeID
		fills       []bool

		wPlain, wCrit []cachepb.NodeID
		wPending      bool
	}{
		{ // plain read, plain fill
			[]cachepb.NodeID{"a", "b"}, nil, []bool{false},
			[]cachepb.NodeID{"a", "b"}, nil, false,
		},
		{ // critical joined, plain fill leaves the critical reader waiting
			[]cachepb.NodeID{"a"}, []cachepb.NodeID{"b"}, []bool{false},
			[]cachepb.NodeID{"a"}, nil, true,
		},
		{ // critical joined, both fills
			[]cachepb.NodeID{"a"}, []cachepb.NodeID{"b"}, []bool{false, true},
			nil, []cachepb.NodeID{"b"}, false,
		},
		{ // critical fill first answers everyone
			[]cachepb.NodeID{"a"}, []cachepb.NodeID{"b"}, []bool{true},
			[]cachepb.NodeID{"a"}, []cachepb.NodeID{"b"}, false,
		},
		{ // critical read only
			nil, []cachepb.NodeID{"b"}, []bool{true},
			nil, []cachepb.NodeID{"b"}, false,
		},
	}
	for i, tt := range tests {
		tr := NewTracker(3)
		for _, id := range tt.plain {
			tr.BeginRead(5, id, false)
		}
		for _, id := range tt.crit {
			tr.BeginRead(5, id, true)
		}

		var plain, crit []cachepb.NodeID
		for _, critical := range tt.fills {
			plain, crit = tr.ResolveFill(5, critical)
		}
		if !reflect.DeepEqual(plain, tt.wPlain) || !reflect.DeepEqual(crit, tt.wCrit) {
			t.Fatalf("#%d: expected %v %v, got %v %v", i, tt.wPlain, tt.wCrit, plain, crit)
		}
		if tr.IsReadPending(5) != tt.wPending {
			t.Fatalf("#%d: pending expected %v", i, tt.wPending)
		}
	}
}

func Test_Tracker_BeginWrite(t *testing.T) {
	tr := NewTracker(3)

	tr.BeginWrite(1, 5, "client-0", false)
	if !tr.IsWritePending(5) || !tr.IsCorrelationPending(1) {
		t.Fatal("write 1 of key 5 must be pending")
	}
	if tr.IsWritePending(6) || tr.IsCorrelationPending(2) {
		t.Fatal("unexpected pending write")
	}

	conv, ok := tr.ResolveWrite(1)
	if !ok || conv.sender != "client-0" || conv.key != 5 {
		t.Fatalf("unexpected conversation %+v (%v)", conv, ok)
	}
	if tr.IsWritePending(5) || tr.IsCorrelationPending(1) {
		t.Fatal("write 1 must be cleared")
	}
	if _, ok = tr.ResolveWrite(1); ok {
		t.Fatal("write 1 resolved twice")
	}
}

func Test_Tracker_NextRetry(t *testing.T) {
	tr := NewTracker(3)
	tr.BeginRead(5, "client-0", false)
	tr.BeginWrite(9, 6, cachepb.None, true)

	for i := 1; i <= 3; i++ {
		conv, ok := tr.NextReadRetry(5)
		if !ok || conv.retryCount != i {
			t.Fatalf("#%d: read retry expected ok, got %v (%+v)", i, ok, conv)
		}
		wconv, ok := tr.NextWriteRetry(9)
		if !ok || wconv.retryCount != i {
			t.Fatalf("#%d: write retry expected ok, got %v (%+v)", i, ok, wconv)
		}
	}

	conv, ok := tr.NextReadRetry(5)
	if ok {
		t.Fatal("fourth read retry must fail")
	}
	if !reflect.DeepEqual(conv.senders, []cachepb.NodeID{"client-0"}) {
		t.Fatalf("abandoned read lost its senders %v", conv.senders)
	}
	if _, ok = tr.NextWriteRetry(9); ok {
		t.Fatal("fourth write retry must fail")
	}
	if tr.IsReadPending(5) || tr.IsWritePending(6) {
		t.Fatal("exhausted conversations must be cleared")
	}

	if _, ok = tr.NextReadRetry(5); ok {
		t.Fatal("retry of a cleared read must fail")
	}
}

func Test_Tracker_Reset(t *testing.T) {
	tr := NewTracker(3)
	tr.BeginRead(1, "a", false)
	tr.BeginWrite(2, 3, "b", false)

	tr.Reset()
	tr.Reset()
	if tr.NumReads() != 0 || tr.NumWrites() != 0 || tr.IsWritePending(3) {
		t.Fatal("Reset left a conversation")
	}
}
