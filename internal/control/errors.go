package control

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the control package.
var (
	// ErrLoopNotFound is returned when a loop ID does not exist.
	ErrLoopNotFound = fmt.Errorf("loop: %w", fault.ErrNotFound)

	// ErrAlreadyRegistered is returned when registering an existing loop ID.
	ErrAlreadyRegistered = fmt.Errorf("loop: %w", fault.ErrAlreadyRegistered)

	// ErrUnknownType is returned for a controller type outside the closed set.
	ErrUnknownType = fmt.Errorf("loop: %w", fault.ErrUnknownType)

	// ErrExecution wraps controller failures.
	ErrExecution = fmt.Errorf("loop: %w", fault.ErrExecution)

	// ErrInvalidLoop is returned when a loop definition or update is invalid.
	ErrInvalidLoop = errors.New("loop: invalid")

	// ErrUnknownProfile is returned when tuning with an unregistered profile.
	ErrUnknownProfile = errors.New("loop: unknown tuning profile")

	// ErrProfileMismatch is returned when a profile targets another
	// controller type.
	ErrProfileMismatch = errors.New("loop: profile does not match controller type")
)
