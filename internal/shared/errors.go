package shared

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable classification of a failure.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidArgument Kind = "invalid_argument"
	KindStorage         Kind = "storage"
)

var (
	// ErrUnauthorized indicates the actor may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the resource is missing or inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a transition precondition failed.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorage indicates a collaborator failure.
	ErrStorage = errors.New("storage error")
)

var kindSentinels = map[Kind]error{
	KindUnauthorized:    ErrUnauthorized,
	KindNotFound:        ErrNotFound,
	KindInvalidState:    ErrInvalidState,
	KindInvalidArgument: ErrInvalidArgument,
	KindStorage:         ErrStorage,
}

// Error carries a Kind, the failing operation and a caller-safe message. Err
// holds the underlying cause and is never rendered to untrusted callers.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// E builds an *Error.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// StorageFailure wraps a collaborator failure. The cause stays reachable via
// errors.Is/As but is not part of the public message.
func StorageFailure(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Msg: "storage unavailable", Err: err}
}

// KindOf returns the classification of err. Unclassified errors are storage
// failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindStorage
}

// PublicMessage returns the message safe to show callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStorage && e.Msg != "" {
		return e.Msg
	}
	switch KindOf(err) {
	case KindUnauthorized:
		return "permission denied"
	case KindNotFound:
		return "achievement not found"
	case KindInvalidState:
		return "achievement is not in a reviewable state"
	case KindInvalidArgument:
		return "invalid request"
	}
	return "internal error, please retry later"
}
