package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDesync marks an event stream that is inconsistent with this state instance.
	// Callers should abort the session instead of trying to repair the state.
	ErrDesync = errors.New("state desync")

	ErrUnitNotFound    = errors.New("unit not found")
	ErrDuplicateUnit   = errors.New("unit already exists")
	ErrBudgetExhausted = errors.New("budget exhausted")
	ErrUnknownUnitType = errors.New("unknown unit type")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrHalted          = errors.New("state halted after desync")
)

// DesyncError describes the precondition an event violated.
type DesyncError struct {
	Kind   EventKind
	UnitID *UnitID
	Cause  error
	Reason string
}

func (e *DesyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDesync, e.Kind)
	if e.UnitID != nil {
		msg += fmt.Sprintf(" unit %d", *e.UnitID)
	}
	msg += ": " + e.Cause.Error()
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Unwrap lets errors.Is match both ErrDesync and the specific cause.
func (e *DesyncError) Unwrap() []error {
	return []error{ErrDesync, e.Cause}
}

func desync(kind EventKind, id UnitID, cause error, format string, args ...any) *DesyncError {
	return &DesyncError{
		Kind:   kind,
		UnitID: &id,
		Cause:  cause,
		Reason: fmt.Sprintf(format, args...),
	}
}

func desyncNoUnit(kind EventKind, cause error, format string, args ...any) *DesyncError {
	return &DesyncError{
		Kind:   kind,
		Cause:  cause,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsDesync reports whether err is a desync error
func IsDesync(err error) bool {
	return errors.Is(err, ErrDesync)
}
