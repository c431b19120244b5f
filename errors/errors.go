package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrUnknownUser          = fmt.Errorf("unknown user")
	ErrUnknownRecipient     = fmt.Errorf("unknown recipient")
	ErrUnknownMessage       = fmt.Errorf("unknown message")
	ErrAlreadyFriends       = fmt.Errorf("already friends")
	ErrDuplicateRequest     = fmt.Errorf("friend request already sent")
	ErrSelfRequest          = fmt.Errorf("cannot befriend yourself")
	ErrUnauthorized         = fmt.Errorf("unauthorized")
	ErrAlreadyAuthenticated = fmt.Errorf("already authenticated")
	ErrAuthenticationFailed = fmt.Errorf("invalid username or secret")
	ErrUserAlreadyExists    = fmt.Errorf("username already exists")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials format")
	ErrEmptyBody            = fmt.Errorf("message body is empty")
	ErrMalformedEvent       = fmt.Errorf("malformed event")
	ErrUnknownEvent         = fmt.Errorf("unknown event")
	ErrStorage              = fmt.Errorf("storage failure")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")
	ErrInvalidToken         = fmt.Errorf("invalid or expired token")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrSlowConsumer         = fmt.Errorf("connection too slow, event dropped")
	ErrConnectionClosed     = fmt.Errorf("connection closed")
)

// clientFacing lists the errors whose message can be shown to a client as is.
var clientFacing = []error{
	ErrUnknownUser,
	ErrUnknownRecipient,
	ErrAlreadyFriends,
	ErrDuplicateRequest,
	ErrSelfRequest,
	ErrUnauthorized,
	ErrAlreadyAuthenticated,
	ErrAuthenticationFailed,
	ErrUserAlreadyExists,
	ErrInvalidCredentials,
	ErrEmptyBody,
	ErrMalformedEvent,
	ErrUnknownEvent,
	ErrInvalidToken,
}

// Reason maps an error to the message sent back to a client.
// Storage and internal failures are reduced to a generic message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range clientFacing {
		if stderrors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// Storage wraps a ledger failure so callers can classify it with errors.Is.
func Storage(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
