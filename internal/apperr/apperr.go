// Package apperr is the error vocabulary controllers hand to a front-end.
package apperr

import (
	"errors"
	"fmt"

	"marketbaza/internal/apiclient"
)

type Kind int

const (
	// Validation means the request never left the process.
	Validation Kind = iota + 1
	// Network means no response arrived.
	Network
	// Server means the service answered with a non-2xx status.
	Server
	// Partial means a multi-step operation finished some steps and not others.
	Partial
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Network:
		return "network"
	case Server:
		return "server"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidation(op, message string) *Error {
	return &Error{Kind: Validation, Op: op, Message: message}
}

// NewPartial reports that message describes what did not happen; err carries
// the underlying failures.
func NewPartial(op, message string, err error) *Error {
	return &Error{Kind: Partial, Op: op, Message: message, Err: err}
}

// FromClient classifies an API client failure. Errors that are already an
// *Error pass through unchanged.
func FromClient(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var netErr *apiclient.NetworkError
	if errors.As(err, &netErr) {
		return &Error{Kind: Network, Op: op, Message: "service unreachable", Err: err}
	}
	var srvErr *apiclient.ServerError
	if errors.As(err, &srvErr) {
		return &Error{Kind: Server, Op: op, Message: srvErr.Message, Err: err}
	}
	return &Error{Kind: Server, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, zero if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
