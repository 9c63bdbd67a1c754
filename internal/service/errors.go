package service

import (
	"errors"
	"fmt"
)

// Kind classifies a remote access failure.
type Kind int

const (
	// Unknown is any failure not covered below; Message carries the raw detail.
	Unknown Kind = iota
	// Unauthenticated means no credential was available locally; no call was issued.
	Unauthenticated
	// Unauthorized means the store rejected the credential.
	Unauthorized
	// NotFound means the entity is absent or not owned by the actor.
	NotFound
	// Validation means the store rejected the payload.
	Validation
	// Transport means a network, timeout or decoding failure.
	Transport
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not found"
	case Validation:
		return "validation"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified remote access failure.
type Error struct {
	Kind    Kind
	Message string
	Status  int // HTTP status when the store answered, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrUnauthenticated is returned when a call is attempted without a credential.
var ErrUnauthenticated = &Error{Kind: Unauthenticated, Message: "not logged in"}

// KindOf returns the kind of a classified error, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == NotFound
}
