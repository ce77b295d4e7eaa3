package node

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the node package.
//
// Each wraps the matching fault kind, so both of these hold:
//
//	errors.Is(err, node.ErrRateLimited)
//	errors.Is(err, fault.ErrRateLimited)
var (
	// ErrCapacityExceeded is returned when the registry holds MaxNodes nodes.
	ErrCapacityExceeded = fmt.Errorf("node: %w", fault.ErrCapacityExceeded)

	// ErrAlreadyRegistered is returned when registering an id that is present.
	ErrAlreadyRegistered = fmt.Errorf("node: %w", fault.ErrAlreadyRegistered)

	// ErrUnknownNode is returned when a node id is not registered.
	ErrUnknownNode = fmt.Errorf("node: %w", fault.ErrUnknownNode)

	// ErrRateLimited is returned when a node has used its signal budget.
	ErrRateLimited = fmt.Errorf("node: %w", fault.ErrRateLimited)

	// ErrUnknownType is returned for a node type outside the closed set.
	ErrUnknownType = fmt.Errorf("node: %w", fault.ErrUnknownType)

	// ErrInvalidID is returned when a node id is empty.
	ErrInvalidID = errors.New("node: invalid id")
)
