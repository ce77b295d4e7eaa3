package network

import (
	"errors"

	"github.com/nerrad567/controlnet-core/internal/fault"
	"github.com/nerrad567/controlnet-core/internal/routing"
)

// Errors callers of the runtime check with errors.Is. They are the shared
// taxonomy every component wraps, so a component's own sentinel matches too.
var (
	ErrCapacityExceeded   = fault.ErrCapacityExceeded
	ErrUnknownNode        = fault.ErrUnknownNode
	ErrRateLimited        = fault.ErrRateLimited
	ErrAlreadyRegistered  = fault.ErrAlreadyRegistered
	ErrNotFound           = fault.ErrNotFound
	ErrUnknownType        = fault.ErrUnknownType
	ErrNotInEmergencyMode = fault.ErrNotInEmergencyMode
	ErrEmergencyActive    = fault.ErrEmergencyActive
	ErrExecution          = fault.ErrExecution

	// ErrInvalidSignal is returned for a signal with no type.
	ErrInvalidSignal = routing.ErrInvalidSignal

	// ErrClosed is returned by operations after Shutdown.
	ErrClosed = errors.New("network: runtime shut down")
)
