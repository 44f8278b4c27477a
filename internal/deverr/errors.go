// Package deverr defines the error kinds shared by the capture and display
// stages.
package deverr

import (
	"errors"
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Kind classifies a failure.
type Kind string

// Error kinds.
const (
	// KindConfiguration is an invalid user-supplied parameter, detected
	// before any device call.
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	// KindDevice is a failed kernel call or a missing resource.
	KindDevice Kind = "DEVICE_ERROR"
	// KindNegotiation means the device cannot satisfy the requested format.
	KindNegotiation Kind = "NEGOTIATION_FAILURE"
	// KindPartialAllocation means buffer setup failed midway; everything
	// acquired up to that point has been released.
	KindPartialAllocation Kind = "PARTIAL_ALLOCATION_FAILURE"
)

// Error is a classified device error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix += ": " + e.Op
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind with no op or message set,
// so errors.Is(err, deverr.Negotiation) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Cause == nil
}

// Sentinels for errors.Is.
var (
	Configuration     = &Error{Kind: KindConfiguration}
	Device            = &Error{Kind: KindDevice}
	Negotiation       = &Error{Kind: KindNegotiation}
	PartialAllocation = &Error{Kind: KindPartialAllocation}
)

// New creates a classified error. A non-nil cause is annotated with the
// caller's stack.
func New(kind Kind, op, message string, cause error) *Error {
	return newDepth(kind, op, message, cause, 2)
}

func newDepth(kind Kind, op, message string, cause error, depth int) *Error {
	if cause != nil {
		cause = crdb.WithStackDepth(cause, depth)
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Configf creates a configuration error.
func Configf(op, format string, args ...any) *Error {
	return newDepth(KindConfiguration, op, fmt.Sprintf(format, args...), nil, 2)
}

// Devicef wraps a kernel failure.
func Devicef(op string, cause error, format string, args ...any) *Error {
	return newDepth(KindDevice, op, fmt.Sprintf(format, args...), cause, 2)
}

// Detail renders the first *Error in err's chain with the stack recorded
// for its cause. Errors without one render as err.Error().
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Cause != nil {
		return fmt.Sprintf("%s\n%+v", e.Error(), e.Cause)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
