package cachepb

// OPERATION says what a node did with a message when it emitted an Event.
type OPERATION int32

const (
	OPERATION_RECEIVE OPERATION = iota
	OPERATION_SEND
	OPERATION_MULTICAST
	OPERATION_DROP
	OPERATION_ABANDON
	OPERATION_STATE
)

var OPERATION_name = map[OPERATION]string{
	OPERATION_RECEIVE:   "RECEIVE",
	OPERATION_SEND:      "SEND",
	OPERATION_MULTICAST: "MULTICAST",
	OPERATION_DROP:      "DROP",
	OPERATION_ABANDON:   "ABANDON",
	OPERATION_STATE:     "STATE",
}

func (op OPERATION) String() string { return OPERATION_name[op] }

// Event is written to the observability side-channel for each protocol step.
// Nothing in the hierarchy reads events back.
type Event struct {
	Node      NodeID
	Operation OPERATION
	Message   Message

	// Info is a short free-form detail, e.g. "key 5 is locked".
	Info string
}
