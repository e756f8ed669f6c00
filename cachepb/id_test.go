package cachepb

import (
	"sort"
	"testing"
	"time"
)

func Test_NewIDGenerator(t *testing.T) {
	g := NewIDGenerator(0x12, time.Unix(0, 0).Add(0x3456*time.Millisecond))
	id := g.Next()
	wid := ID(0x12000000345601)
	if id != wid {
		t.Fatalf("id expected %v, got %v", wid, id)
	}
}

func Test_NewIDGenerator_unique(t *testing.T) {
	g := NewIDGenerator(0, time.Time{})
	id := g.Next()

	// same node started later
	gLater := NewIDGenerator(0, time.Now())
	if idLater := gLater.Next(); id == idLater {
		t.Fatalf("expected %v != %v", id, idLater)
	}

	// different node generates different ID
	gDifferent := NewIDGenerator(1, time.Now())
	if idDifferent := gDifferent.Next(); id == idDifferent {
		t.Fatalf("expected %v != %v", id, idDifferent)
	}
}

func Test_IDGenerator_Next(t *testing.T) {
	g := NewIDGenerator(0x12, time.Unix(0, 0).Add(0x3456*time.Millisecond))
	wid := ID(0x12000000345601)
	for i := 0; i < 1000; i++ {
		if id := g.Next(); id != wid+ID(i) {
			t.Fatalf("#%d: id expected %v, got %v", i, wid+ID(i), id)
		}
	}
}

func Test_NodeIDs(t *testing.T) {
	ids := NodeIDs{"L2-2", "L2-0", "L2-1"}
	sort.Sort(ids)
	if ids[0] != "L2-0" || ids[2] != "L2-2" {
		t.Fatalf("unexpected order %v", ids)
	}
	if !ids.Contains("L2-1") {
		t.Fatal("expected to contain L2-1")
	}
	if ids.Contains("L1-0") {
		t.Fatal("unexpected L1-0")
	}
	if None.String() != "<none>" {
		t.Fatalf("unexpected %q", None.String())
	}
}
