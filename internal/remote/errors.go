package remote

import (
	"errors"
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/fault"
)

// Domain errors for the remote package.
var (
	// ErrSiteNotFound is returned when a site ID does not exist.
	ErrSiteNotFound = fmt.Errorf("remote: site %w", fault.ErrNotFound)

	// ErrAlreadyRegistered is returned for a duplicate site ID.
	ErrAlreadyRegistered = fmt.Errorf("remote: %w", fault.ErrAlreadyRegistered)

	// ErrUnknownProtocol is returned for a site with an unsupported protocol.
	ErrUnknownProtocol = fmt.Errorf("remote: protocol %w", fault.ErrUnknownType)

	// ErrInvalidSite is returned for a site with no ID.
	ErrInvalidSite = errors.New("remote: invalid site")

	// ErrNoTransport is returned when sending without a transport.
	ErrNoTransport = errors.New("remote: no transport configured")

	// ErrOutboxFull is returned when the send queue has no room.
	ErrOutboxFull = errors.New("remote: outbox full")
)
