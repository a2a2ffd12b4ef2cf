package fetch

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error carries exactly one of these and matches it with
// errors.Is.
var (
	ErrControlRequest      = errors.New("fetch-service control request failed")
	ErrSpawn               = errors.New("fetch-service failed to start")
	ErrPortsInUse          = errors.New("fetch-service ports already in use")
	ErrExited              = errors.New("fetch-service exited before becoming healthy")
	ErrNotHealthy          = errors.New("fetch-service did not become healthy")
	ErrUnsupportedInstance = errors.New("unsupported instance type")
	ErrInvalidSession      = errors.New("invalid fetch-service session")
)

// Error is the single error family surfaced by the control plane.
type Error struct {
	Kind       error
	Message    string
	Details    string
	Resolution string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// TeardownStep names one of the ordered session teardown calls.
type TeardownStep string

const (
	StepRevokeToken     TeardownStep = "revoke token"
	StepReport          TeardownStep = "fetch report"
	StepDeleteSession   TeardownStep = "delete session"
	StepDeleteResources TeardownStep = "delete resources"
)

// TeardownError reports which teardown step failed. Steps before it have
// already been applied on the daemon; steps after it were not attempted.
type TeardownError struct {
	Step      TeardownStep
	SessionID string
	Err       error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown session %s: %s: %v", e.SessionID, e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
