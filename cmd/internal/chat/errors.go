package chat

import "errors"

var (
	// ErrValidation marks a request that is malformed on its face: an empty
	// message body, a conversation with yourself, a missing participant id.
	ErrValidation = errors.New("chat: invalid input")

	// ErrNotFound marks a lookup for a conversation or message that does not
	// exist.
	ErrNotFound = errors.New("chat: not found")

	// ErrForbidden marks an operation attempted by a user who is not a
	// participant of the target conversation.
	ErrForbidden = errors.New("chat: not a participant")
)
