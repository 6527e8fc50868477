package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyAssigned   = errors.New("job already assigned")
	ErrStaleWrite        = errors.New("stale write")
	ErrValidation        = errors.New("validation error")
	ErrDuplicate         = errors.New("job already exists")
)

// TransitionError explains why a requested move was refused.
type TransitionError struct {
	From   Status
	Sub    SubStatus
	Action Action
	Role   Role
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("invalid transition: %s from %s/%s as %s: %s", e.Action, e.From, e.Sub, e.Role, e.Reason)
	}
	return fmt.Sprintf("invalid transition: %s from %s as %s: %s", e.Action, e.From, e.Role, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StaleWriteError carries the version the caller saw and the one stored.
type StaleWriteError struct {
	JobID    string
	Expected int64
	Actual   int64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write on job %s: expected version %d, current %d", e.JobID, e.Expected, e.Actual)
}

func (e *StaleWriteError) Unwrap() error { return ErrStaleWrite }

// Error codes shared by HTTP responses and bulk results.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyAssigned   = "ALREADY_ASSIGNED"
	CodeStaleWrite        = "STALE_WRITE"
	CodeValidation        = "VALIDATION_ERROR"
	CodeDuplicate         = "DUPLICATE"
	CodeServiceError      = "SERVICE_ERROR"
)

// ErrorCode classifies err into the wire error vocabulary.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrAlreadyAssigned):
		return CodeAlreadyAssigned
	case errors.Is(err, ErrStaleWrite):
		return CodeStaleWrite
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrDuplicate):
		return CodeDuplicate
	default:
		return CodeServiceError
	}
}
