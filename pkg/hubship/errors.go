package hubship

import "github.com/shiplabs/hubship/internal/domain"

// Sentinel errors returned by Hubship operations.
// Compare with errors.Is; dispatch errors arrive wrapped with context.
var (
	// ErrOversizedEvent marks a change event too large for an empty batch.
	ErrOversizedEvent = domain.ErrOversizedEvent

	// ErrTransmission marks a batch that could not be delivered to the hub.
	ErrTransmission = domain.ErrTransmission

	// ErrCommit marks an event that was transmitted but could not be committed.
	ErrCommit = domain.ErrCommit

	// ErrAlreadyRunning is returned by Start when the instance is not stopped.
	ErrAlreadyRunning = domain.ErrAlreadyRunning

	// ErrNotRunning is returned by Stop when the instance is not running.
	ErrNotRunning = domain.ErrNotRunning

	// ErrShutdownTimeout is returned by Stop when workers did not finish in time.
	ErrShutdownTimeout = domain.ErrShutdownTimeout

	// ErrInvalidConfig marks a configuration the dispatcher cannot act on.
	ErrInvalidConfig = domain.ErrInvalidConfig
)
