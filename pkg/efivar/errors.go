package efivar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the variable does not exist.
	ErrNotFound = errors.New("efi variable not found")
	// ErrAlreadyExists is returned by CreateAndWrite if the variable is already present.
	ErrAlreadyExists = errors.New("efi variable already exists")
	// ErrInvalidName is returned for names that would escape the variable directory.
	ErrInvalidName = errors.New("invalid efi variable name")
)

// LengthMismatchError is returned when a record does not have the expected size.
type LengthMismatchError struct {
	Name     string
	Expected int
	Actual   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("efi variable %q has invalid length: expected %d, actual %d", e.Name, e.Expected, e.Actual)
}

// Step names a sub-step of a record mutation.
type Step string

const (
	StepOpen          Step = "open"
	StepGetAttributes Step = "get-attributes"
	StepUnprotect     Step = "unprotect"
	StepWrite         Step = "write"
	StepFlush         Step = "flush"
	StepProtect       Step = "protect"
	StepCreate        Step = "create"
	StepRemove        Step = "remove"
)

// PostFailureState is the state a record may be in after a failed mutation.
// Callers must assume the worst state for the failed step.
type PostFailureState int

const (
	StateUnknown PostFailureState = iota
	// StateProtectedOld means nothing was changed.
	StateProtectedOld
	// StateUnprotectedOld means the protection was lifted but the value was not replaced.
	StateUnprotectedOld
	// StateUnprotectedNew means the new value may be in place but protection was not restored.
	StateUnprotectedNew
)

func (s PostFailureState) String() string {
	switch s {
	case StateProtectedOld:
		return "protected/old-value"
	case StateUnprotectedOld:
		return "unprotected/old-value"
	case StateUnprotectedNew:
		return "unprotected/new-value"
	default:
		return "unknown"
	}
}

// WriteError reports which sub-step of a mutation failed.
type WriteError struct {
	Name string
	Step Step
	Err  error
	// Restored is set when write protection was put back after the failure.
	Restored bool
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("efi variable %q: %s failed: %v", e.Name, e.Step, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// State returns the pessimistic post-failure state of the record.
func (e *WriteError) State() PostFailureState {
	switch e.Step {
	case StepOpen, StepGetAttributes, StepUnprotect:
		return StateProtectedOld
	case StepWrite:
		return StateUnprotectedOld
	case StepFlush, StepProtect:
		return StateUnprotectedNew
	default:
		return StateUnknown
	}
}

func newWriteError(name string, step Step, err error) *WriteError {
	return &WriteError{Name: name, Step: step, Err: err}
}
