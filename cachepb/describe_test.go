package cachepb

import (
	"strings"
	"testing"
)

func Test_DescribeMessage(t *testing.T) {
	tests := []struct {
		msg       Message
		wContains []string
	}{
		{
			Message{Type: MESSAGE_TYPE_READ, From: "client-0", To: "L2-0", Key: 5, UpdateCount: 3},
			[]string{`"READ"`, "client-0 ➝ to=L2-0", "key=5", "uc=3"},
		},
		{
			Message{Type: MESSAGE_TYPE_CRITICAL_WRITE_VOTE, From: "L1-0", To: "store", ID: 1, Key: 7, Ok: true},
			[]string{`"CRIT-WRITE-VOTE"`, "id=0000000000000001", "ok=true"},
		},
		{
			Message{Type: MESSAGE_TYPE_ERROR, ErrorKind: ERROR_KIND_UNKNOWN_KEY, OriginalType: MESSAGE_TYPE_READ, Key: 200},
			[]string{"kind=UNKNOWN-KEY", "key=200", `original type="READ"`},
		},
		{
			Message{Type: MESSAGE_TYPE_TIMEOUT, OriginalType: MESSAGE_TYPE_WRITE, Unreachable: "L2-1"},
			[]string{`kind="WRITE"`, "unreachable=L2-1"},
		},
		{
			Message{Type: MESSAGE_TYPE_JOIN, JoinRole: JOIN_ROLE_CHILDREN, Group: []NodeID{"L2-0", "L2-1"}},
			[]string{"role=children", "[L2-0 L2-1]"},
		},
	}

	for i, tt := range tests {
		s := DescribeMessage(tt.msg)
		for _, w := range tt.wContains {
			if !strings.Contains(s, w) {
				t.Errorf("#%d: expected %q in %q", i, w, s)
			}
		}
	}
}

func Test_MESSAGE_TYPE_String(t *testing.T) {
	for tp, name := range MESSAGE_TYPE_name {
		if tp.String() != name {
			t.Errorf("%d: expected %q, got %q", tp, name, tp.String())
		}
	}
	if s := MESSAGE_TYPE(999).String(); s != "MESSAGE_TYPE(999)" {
		t.Fatalf("unexpected %q", s)
	}
}

func Test_IsControlMessage(t *testing.T) {
	tests := []struct {
		tp        MESSAGE_TYPE
		wControl  bool
		wRead     bool
		wWriteMsg bool
	}{
		{MESSAGE_TYPE_CRASH, true, false, false},
		{MESSAGE_TYPE_JOIN, true, false, false},
		{MESSAGE_TYPE_READ, false, true, false},
		{MESSAGE_TYPE_CRITICAL_READ, false, true, false},
		{MESSAGE_TYPE_CRITICAL_WRITE, false, false, true},
		{MESSAGE_TYPE_FLUSH, false, false, false},
	}
	for i, tt := range tests {
		if g := IsControlMessage(tt.tp); g != tt.wControl {
			t.Errorf("#%d: control expected %v, got %v", i, tt.wControl, g)
		}
		if g := IsReadMessage(tt.tp); g != tt.wRead {
			t.Errorf("#%d: read expected %v, got %v", i, tt.wRead, g)
		}
		if g := IsWriteMessage(tt.tp); g != tt.wWriteMsg {
			t.Errorf("#%d: write expected %v, got %v", i, tt.wWriteMsg, g)
		}
	}
}
