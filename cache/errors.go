package cache

import "errors"

var (
	// ErrStopped is returned when a Node has been stopped.
	ErrStopped = errors.New("cache: stopped")

	// ErrLocked is returned when locking a key that is already locked.
	ErrLocked = errors.New("cache: key is locked")

	// ErrUnknownRole is returned when starting a node with an unknown role.
	ErrUnknownRole = errors.New("cache: unknown node role")

	// ErrUnexpectedMessage is returned when a role receives
	// a message type it does not handle.
	ErrUnexpectedMessage = errors.New("cache: unexpected message")
)
