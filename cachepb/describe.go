package cachepb

import (
	"bytes"
	"fmt"
)

// IsControlMessage returns true if the message type is injected from
// outside the hierarchy (bootstrap, harness, crash control).
func IsControlMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_JOIN ||
		tp == MESSAGE_TYPE_INSTANTIATE_WRITE ||
		tp == MESSAGE_TYPE_INSTANTIATE_READ ||
		tp == MESSAGE_TYPE_CRASH ||
		tp == MESSAGE_TYPE_RECOVER
}

// IsReadMessage returns true for plain and critical reads.
func IsReadMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_READ || tp == MESSAGE_TYPE_CRITICAL_READ
}

// IsWriteMessage returns true for plain and critical writes.
func IsWriteMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_WRITE || tp == MESSAGE_TYPE_CRITICAL_WRITE
}

// DescribeMessage describes Message in human-readable format.
func DescribeMessage(msg Message) string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "Message [type=%q | from=%s ➝ to=%s", msg.Type, msg.From, msg.To)

	switch msg.Type {
	case MESSAGE_TYPE_JOIN:
		fmt.Fprintf(buf, " | role=%s | group=%v", msg.JoinRole, msg.Group)

	case MESSAGE_TYPE_INSTANTIATE_WRITE:
		fmt.Fprintf(buf, " | key=%d, value=%d | critical=%v | target=%s", msg.Key, msg.Value, msg.Critical, msg.Target)

	case MESSAGE_TYPE_INSTANTIATE_READ:
		fmt.Fprintf(buf, " | key=%d | critical=%v | target=%s", msg.Key, msg.Critical, msg.Target)

	case MESSAGE_TYPE_CRASH, MESSAGE_TYPE_RECOVER, MESSAGE_TYPE_FLUSH:

	case MESSAGE_TYPE_READ, MESSAGE_TYPE_CRITICAL_READ:
		fmt.Fprintf(buf, " | key=%d | uc=%d", msg.Key, msg.UpdateCount)

	case MESSAGE_TYPE_FILL, MESSAGE_TYPE_READ_REPLY:
		fmt.Fprintf(buf, " | key=%d, value=%d | uc=%d | critical=%v", msg.Key, msg.Value, msg.UpdateCount, msg.Critical)

	case MESSAGE_TYPE_CRITICAL_WRITE_REQUEST, MESSAGE_TYPE_CRITICAL_WRITE_ABORT:
		fmt.Fprintf(buf, " | id=%s | key=%d", msg.ID, msg.Key)

	case MESSAGE_TYPE_CRITICAL_WRITE_VOTE:
		fmt.Fprintf(buf, " | id=%s | key=%d | ok=%v", msg.ID, msg.Key, msg.Ok)

	case MESSAGE_TYPE_ERROR:
		fmt.Fprintf(buf, " | kind=%s | key=%d | original type=%q | %s", msg.ErrorKind, msg.Key, msg.OriginalType, msg.Description)

	case MESSAGE_TYPE_TIMEOUT:
		fmt.Fprintf(buf, " | kind=%q | unreachable=%s", msg.OriginalType, msg.Unreachable)

	default:
		fmt.Fprintf(buf, " | id=%s | key=%d, value=%d | uc=%d", msg.ID, msg.Key, msg.Value, msg.UpdateCount)
	}

	buf.WriteString("]")
	return buf.String()
}
