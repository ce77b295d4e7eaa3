package safety

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the safety package.
var (
	// ErrNotInEmergencyMode is returned when resetting while armed.
	ErrNotInEmergencyMode = fmt.Errorf("safety: %w", fault.ErrNotInEmergencyMode)

	// ErrInterlockNotFound is returned when an interlock ID does not exist.
	ErrInterlockNotFound = fmt.Errorf("safety: interlock %w", fault.ErrNotFound)

	// ErrEStopNotFound is returned when an emergency stop ID does not exist.
	ErrEStopNotFound = fmt.Errorf("safety: emergency stop %w", fault.ErrNotFound)

	// ErrPermitNotFound is returned when a permit ID does not exist.
	ErrPermitNotFound = fmt.Errorf("safety: permit %w", fault.ErrNotFound)

	// ErrAlreadyRegistered is returned for a duplicate interlock or
	// emergency stop ID.
	ErrAlreadyRegistered = fmt.Errorf("safety: %w", fault.ErrAlreadyRegistered)

	// ErrUnknownType is returned for an unknown interlock type, action or
	// emergency stop scope.
	ErrUnknownType = fmt.Errorf("safety: %w", fault.ErrUnknownType)

	// ErrInterlockDisabled is returned when triggering a disabled interlock.
	ErrInterlockDisabled = errors.New("safety: interlock disabled")

	// ErrInvalidDefinition is returned for incomplete interlock, emergency
	// stop or permit definitions.
	ErrInvalidDefinition = errors.New("safety: invalid definition")

	// ErrPermitNotActive is returned when revoking an expired or revoked permit.
	ErrPermitNotActive = errors.New("safety: permit not active")
)
