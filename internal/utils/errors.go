package utils

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the control loop and its collaborators.
var (
	ErrNotFound          = errors.New("not found")
	ErrPolicyDenied      = errors.New("denied by safety policy")
	ErrExecution         = errors.New("execution failed")
	ErrValidation        = errors.New("validation failed")
	ErrInFlight          = errors.New("remediation already in flight")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NotFound reports a missing service or ticket under op.
func NotFound(op, what string) error {
	return &AppError{Op: op, Msg: what, Err: ErrNotFound}
}
