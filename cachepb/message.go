package cachepb

import "fmt"

// MESSAGE_TYPE is the type of a message exchanged inside the cache hierarchy.
type MESSAGE_TYPE int32

const (
	MESSAGE_TYPE_JOIN MESSAGE_TYPE = iota

	MESSAGE_TYPE_INSTANTIATE_WRITE
	MESSAGE_TYPE_INSTANTIATE_READ

	MESSAGE_TYPE_CRASH
	MESSAGE_TYPE_RECOVER
	MESSAGE_TYPE_FLUSH

	MESSAGE_TYPE_WRITE
	MESSAGE_TYPE_WRITE_CONFIRM
	MESSAGE_TYPE_READ
	MESSAGE_TYPE_CRITICAL_READ
	MESSAGE_TYPE_FILL
	MESSAGE_TYPE_REFILL
	MESSAGE_TYPE_READ_REPLY

	MESSAGE_TYPE_CRITICAL_WRITE
	MESSAGE_TYPE_CRITICAL_WRITE_REQUEST
	MESSAGE_TYPE_CRITICAL_WRITE_VOTE
	MESSAGE_TYPE_CRITICAL_WRITE_COMMIT
	MESSAGE_TYPE_CRITICAL_WRITE_ABORT

	MESSAGE_TYPE_ERROR
	MESSAGE_TYPE_TIMEOUT
)

// MESSAGE_TYPE_name maps MESSAGE_TYPE to its log name.
var MESSAGE_TYPE_name = map[MESSAGE_TYPE]string{
	MESSAGE_TYPE_JOIN:                   "JOIN",
	MESSAGE_TYPE_INSTANTIATE_WRITE:      "INIT-WRITE",
	MESSAGE_TYPE_INSTANTIATE_READ:       "INIT-READ",
	MESSAGE_TYPE_CRASH:                  "CRASH",
	MESSAGE_TYPE_RECOVER:                "RECOVER",
	MESSAGE_TYPE_FLUSH:                  "FLUSH",
	MESSAGE_TYPE_WRITE:                  "WRITE",
	MESSAGE_TYPE_WRITE_CONFIRM:          "WRITE-CONFIRM",
	MESSAGE_TYPE_READ:                   "READ",
	MESSAGE_TYPE_CRITICAL_READ:          "CRIT-READ",
	MESSAGE_TYPE_FILL:                   "FILL",
	MESSAGE_TYPE_REFILL:                 "REFILL",
	MESSAGE_TYPE_READ_REPLY:             "READ-REPLY",
	MESSAGE_TYPE_CRITICAL_WRITE:         "CRIT-WRITE",
	MESSAGE_TYPE_CRITICAL_WRITE_REQUEST: "CRIT-WRITE-REQUEST",
	MESSAGE_TYPE_CRITICAL_WRITE_VOTE:    "CRIT-WRITE-VOTE",
	MESSAGE_TYPE_CRITICAL_WRITE_COMMIT:  "CRIT-WRITE-COMMIT",
	MESSAGE_TYPE_CRITICAL_WRITE_ABORT:   "CRIT-WRITE-ABORT",
	MESSAGE_TYPE_ERROR:                  "ERROR",
	MESSAGE_TYPE_TIMEOUT:                "TIMEOUT",
}

func (tp MESSAGE_TYPE) String() string {
	if s, ok := MESSAGE_TYPE_name[tp]; ok {
		return s
	}
	return fmt.Sprintf("MESSAGE_TYPE(%d)", int32(tp))
}

// ERROR_KIND classifies the failures that travel as MESSAGE_TYPE_ERROR.
// A node that drops messages while crashed produces no error message at all;
// its peers only observe a timeout.
type ERROR_KIND int32

const (
	ERROR_KIND_NONE ERROR_KIND = iota

	// ERROR_KIND_UNKNOWN_KEY is returned by the authoritative store
	// when it holds no entry for the requested key.
	ERROR_KIND_UNKNOWN_KEY

	// ERROR_KIND_TIMEOUT reports an operation abandoned after its retries.
	ERROR_KIND_TIMEOUT

	// ERROR_KIND_VOTE_ABORT reports a critical write aborted by a participant.
	ERROR_KIND_VOTE_ABORT
)

var ERROR_KIND_name = map[ERROR_KIND]string{
	ERROR_KIND_NONE:        "NONE",
	ERROR_KIND_UNKNOWN_KEY: "UNKNOWN-KEY",
	ERROR_KIND_TIMEOUT:     "TIMEOUT",
	ERROR_KIND_VOTE_ABORT:  "VOTE-ABORT",
}

func (k ERROR_KIND) String() string {
	if s, ok := ERROR_KIND_name[k]; ok {
		return s
	}
	return fmt.Sprintf("ERROR_KIND(%d)", int32(k))
}

// JOIN_ROLE tells a node which of its references a JOIN message sets.
type JOIN_ROLE int32

const (
	JOIN_ROLE_PARENT JOIN_ROLE = iota
	JOIN_ROLE_CHILDREN
	JOIN_ROLE_STORE
)

var JOIN_ROLE_name = map[JOIN_ROLE]string{
	JOIN_ROLE_PARENT:   "parent",
	JOIN_ROLE_CHILDREN: "children",
	JOIN_ROLE_STORE:    "store",
}

func (r JOIN_ROLE) String() string {
	if s, ok := JOIN_ROLE_name[r]; ok {
		return s
	}
	return fmt.Sprintf("JOIN_ROLE(%d)", int32(r))
}

// Message is the only type exchanged between nodes. Which fields are
// meaningful depends on Type.
//
//	JOIN                  JoinRole, Group
//	INSTANTIATE_WRITE     Key, Value, Critical, Target
//	INSTANTIATE_READ      Key, Critical, Target
//	WRITE, CRITICAL_WRITE ID, Key, Value
//	WRITE_CONFIRM         ID, Key, Value, UpdateCount
//	READ, CRITICAL_READ   Key, UpdateCount (requester's known update-count)
//	FILL, READ_REPLY      Key, Value, UpdateCount, Critical (answers a critical read)
//	REFILL                ID, Key, Value, UpdateCount
//	CRITICAL_WRITE_*      ID, Key (+ Ok for VOTE, + Value/UpdateCount for COMMIT)
//	ERROR                 ErrorKind, Key, ID, OriginalType, Description
//	TIMEOUT               OriginalType (the timeout kind), Unreachable, Original, Attempt
type Message struct {
	Type MESSAGE_TYPE

	From NodeID
	To   NodeID

	// ID correlates writes with their confirmations, and critical
	// writes with their commit round.
	ID ID

	Key         int64
	Value       int64
	UpdateCount uint64

	Critical bool
	Ok       bool

	// Target is the second-level cache a client must contact.
	Target NodeID

	JoinRole JOIN_ROLE
	Group    []NodeID

	ErrorKind    ERROR_KIND
	OriginalType MESSAGE_TYPE
	Description  string

	Unreachable NodeID
	Original    *Message

	// Attempt numbers the sends of one conversation. A TIMEOUT whose
	// Attempt is not the conversation's latest is stale.
	Attempt uint32
}
