package automation

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = fmt.Errorf("rule: %w", fault.ErrNotFound)

	// ErrAlreadyRegistered is returned when adding a rule with an existing ID.
	ErrAlreadyRegistered = fmt.Errorf("rule: %w", fault.ErrAlreadyRegistered)

	// ErrUnknownType is returned for an unrecognised condition or action type.
	ErrUnknownType = fmt.Errorf("rule: %w", fault.ErrUnknownType)

	// ErrExecution wraps action failures.
	ErrExecution = fmt.Errorf("rule: %w", fault.ErrExecution)

	// ErrInvalidRule is returned when a rule definition is incomplete.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrUnknownScript is returned when a run-script action names a script
	// that was never registered.
	ErrUnknownScript = errors.New("rule: unknown script")

	// ErrNoHost is returned when an action needs the host and none is set.
	ErrNoHost = errors.New("rule: no action host")
)
