package scheduling

import (
	"errors"
	"fmt"
)

// ErrResourceNotFound is returned by a ResourceDirectory when the requested
// staff member, room or patient does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// ErrAppointmentNotFound is returned by an AppointmentRepository when no row
// matches the requested id.
var ErrAppointmentNotFound = errors.New("appointment not found")

// Kind classifies a scheduling failure.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// Error is a caller-facing failure with a kind and a readable reason.
type Error struct {
	Kind     Kind
	Reason   string
	Resource ResourceKind // set on conflicts
}

func (e *Error) Error() string { return e.Reason }

func notFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func conflictError(kind ResourceKind) error {
	reason := "Dentist has a conflicting appointment at this time"
	if kind == ResourceRoom {
		reason = "Room has a conflicting appointment at this time"
	}
	return &Error{Kind: KindConflict, Reason: reason, Resource: kind}
}

// NewConflictError builds the conflict failure for a resource kind. Stores use
// it when a database constraint rejects an overlapping write.
func NewConflictError(kind ResourceKind) error { return conflictError(kind) }

// KindOf returns the Kind of err, or 0 when err is not a scheduling Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
