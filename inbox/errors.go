package inbox

import (
	"errors"
	"fmt"

	"github.com/vitalvas/federa/resolver"
)

// ErrorKind classifies why an activity was not handled.
type ErrorKind int

const (
	// NoMatch means no handler accepted the activity.
	NoMatch ErrorKind = iota

	// InvalidID means the activity has no string id.
	InvalidID

	// InvalidActor means the actor is missing or could not be resolved.
	InvalidActor

	// InvalidObject means the object is missing, spoofed or could not be
	// resolved.
	InvalidObject

	// DerefError means a referenced document could not be fetched.
	DerefError
)

func (k ErrorKind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case InvalidID:
		return "invalid_id"
	case InvalidActor:
		return "invalid_actor"
	case InvalidObject:
		return "invalid_object"
	case DerefError:
		return "deref_error"
	default:
		return "unknown"
	}
}

// Error reports an activity no handler could take. JSON carries the
// partially obtained document when there was one.
type Error struct {
	Kind ErrorKind
	JSON []byte
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrNoMatch       = &Error{Kind: NoMatch}
	ErrInvalidID     = &Error{Kind: InvalidID}
	ErrInvalidActor  = &Error{Kind: InvalidActor}
	ErrInvalidObject = &Error{Kind: InvalidObject}
	ErrDeref         = &Error{Kind: DerefError}
)

func (e *Error) Error() string {
	var msg string

	switch e.Kind {
	case NoMatch:
		msg = "no handler matched the activity"
	case InvalidID:
		msg = "activity has no valid id"
	case InvalidActor:
		msg = "invalid actor"
	case InvalidObject:
		msg = "invalid object"
	case DerefError:
		msg = "could not fetch a referenced document"
	default:
		msg = "unknown error"
	}

	if e.Err != nil {
		return fmt.Sprintf("inbox: %s: %v", msg, e.Err)
	}

	return "inbox: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Kind == e.Kind
}

// fromResolve maps a resolution failure for the given role (actor or
// object) onto an inbox error.
func fromResolve(role ErrorKind, err error) *Error {
	var rerr *resolver.Error
	if errors.As(err, &rerr) {
		if rerr.Kind == resolver.DerefFailed {
			return &Error{Kind: DerefError, JSON: rerr.JSON, Err: err}
		}

		return &Error{Kind: role, JSON: rerr.JSON, Err: err}
	}

	return &Error{Kind: role, Err: err}
}
