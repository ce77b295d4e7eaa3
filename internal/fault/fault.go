// Package fault holds the error kinds shared across the control network.
//
// Domain packages wrap these in their own prefixed sentinels, so a caller can
// test either the specific error or the general kind:
//
//	errors.Is(err, node.ErrCapacityExceeded)  // specific
//	errors.Is(err, fault.ErrCapacityExceeded) // any registry that is full
package fault

import "errors"

var (
	// ErrCapacityExceeded is returned when a bounded registry is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrUnknownNode is returned for operations that name an unregistered node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrRateLimited is returned when a node's signal budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyRegistered is returned for a duplicate node, rule or loop id.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrNotFound is returned when a rule, loop, interlock or similar id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUnknownType is returned for an unrecognised node, condition, action
	// or controller type.
	ErrUnknownType = errors.New("unknown type")

	// ErrNotInEmergencyMode is returned when resetting a system that is armed.
	ErrNotInEmergencyMode = errors.New("not in emergency mode")

	// ErrEmergencyActive is returned when an operation is refused because the
	// system is in emergency mode.
	ErrEmergencyActive = errors.New("emergency mode active")

	// ErrExecution wraps failures raised by actions and controllers.
	ErrExecution = errors.New("execution error")
)
