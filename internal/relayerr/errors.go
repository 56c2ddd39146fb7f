// Package relayerr implements the relay's five-kind error taxonomy and the
// mapping from internal errors to NIP-01 client replies (OK / CLOSED /
// NOTICE / AUTH).
package relayerr

import "fmt"

// Kind classifies an Error for client-reply mapping.
type Kind int

const (
	// Notice is a user-visible, non-fatal problem.
	Notice Kind = iota
	// AuthRequired means the operation needs an authenticated connection.
	AuthRequired
	// Restricted means the authed pubkey lacks permission for the operation.
	Restricted
	// Internal is an operational failure; its detail never reaches the client.
	Internal
	// NostrSdk collapses vendor-library errors into a generic internal class.
	NostrSdk
)

// Error is the relay's internal error type, carrying enough information to
// render a NIP-01 reply without leaking operational detail.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case AuthRequired:
		return fmt.Sprintf("auth required: %s", e.Message)
	case Restricted:
		return fmt.Sprintf("restricted: %s", e.Message)
	case Internal:
		return fmt.Sprintf("internal error: %s", e.Message)
	case NostrSdk:
		return fmt.Sprintf("nostr sdk error: %s", e.Message)
	default:
		return e.Message
	}
}

// NoticeErr builds a Notice-kind error.
func NoticeErr(format string, args ...interface{}) *Error {
	return &Error{Kind: Notice, Message: fmt.Sprintf(format, args...)}
}

// AuthRequiredErr builds an AuthRequired-kind error.
func AuthRequiredErr(format string, args ...interface{}) *Error {
	return &Error{Kind: AuthRequired, Message: fmt.Sprintf(format, args...)}
}

// RestrictedErr builds a Restricted-kind error.
func RestrictedErr(format string, args ...interface{}) *Error {
	return &Error{Kind: Restricted, Message: fmt.Sprintf(format, args...)}
}

// InternalErr builds an Internal-kind error.
func InternalErr(format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...)}
}

// NostrSdkErr builds a NostrSdk-kind error, for failures surfaced by the
// go-nostr library that don't fit the other kinds.
func NostrSdkErr(format string, args ...interface{}) *Error {
	return &Error{Kind: NostrSdk, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err, constructing an Internal wrapper for any
// other error type so callers always have a Kind to branch on.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: Internal, Message: err.Error()}
}

// EventReply renders the OK message fields for an inbound EVENT that failed
// with err: (ok=false, message).
func EventReply(err *Error) (ok bool, message string) {
	switch err.Kind {
	case Notice:
		return false, err.Message
	case AuthRequired:
		return false, "auth-required: " + err.Message
	case Restricted:
		return false, "restricted: " + err.Message
	case Internal, NostrSdk:
		return false, "error: Internal error"
	default:
		return false, err.Message
	}
}

// ClosedReason renders the CLOSED message reason for a REQ/CLOSE that failed
// with err.
func ClosedReason(err *Error) string {
	switch err.Kind {
	case Notice:
		return err.Message
	case AuthRequired:
		return "auth-required: " + err.Message
	case Restricted:
		return "restricted: " + err.Message
	case Internal, NostrSdk:
		return "Internal error"
	default:
		return err.Message
	}
}

// NeedsFreshChallenge reports whether the client reply for err should be
// preceded by a fresh AUTH challenge message.
func NeedsFreshChallenge(err *Error) bool {
	return err.Kind == AuthRequired
}
