package routing

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the routing package. Unknown-node and rate-limit failures
// are reported with the node package's errors.
var (
	// ErrInvalidSignal is returned when a signal has no type.
	ErrInvalidSignal = errors.New("routing: invalid signal")

	// ErrEmergencyActive is returned for non-system signals while the network
	// is in emergency mode.
	ErrEmergencyActive = fmt.Errorf("routing: %w", fault.ErrEmergencyActive)
)
