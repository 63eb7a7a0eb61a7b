package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol failure classes.
var (
	// ErrInvalidCommand marks a missing, unknown or malformed command.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrToolNotFound marks a CALL_TOOL whose tool id is not registered.
	ErrToolNotFound = errors.New("tool not found")
)

var (
	_ error = (*ToolNotFoundError)(nil)
	_ error = (*CapabilityFault)(nil)
)

// ToolNotFoundError carries the id that failed to resolve.
// It matches ErrToolNotFound with errors.Is.
type ToolNotFoundError struct {
	ToolID string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("Tool %s not found.", e.ToolID)
}

func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// CapabilityFault is an error or panic that escaped a tool body. The global
// context is never updated when a call ends in a fault.
type CapabilityFault struct {
	ToolID string
	Err    error
}

func (e *CapabilityFault) Error() string {
	return e.Err.Error()
}

func (e *CapabilityFault) Unwrap() error {
	return e.Err
}
