package domain

import "errors"

// Domain errors represent error conditions in the hubship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrOversizedEvent is returned when a single event cannot fit into an
	// otherwise-empty batch under the configured maximum size. The event
	// cannot be split, so the dispatch cycle aborts.
	ErrOversizedEvent = errors.New("hubship: event too large to fit into batch")

	// ErrTransmission is returned when the transport rejected or failed to
	// send a batch. Retry is the transport client's responsibility; the
	// dispatcher never retries a send.
	ErrTransmission = errors.New("hubship: batch transmission failed")

	// ErrCommit is returned when the commit handle failed for an event that
	// was already transmitted. Commits issued before the failure stand.
	ErrCommit = errors.New("hubship: record commit failed")

	// ErrUnknownRoutingKey is returned when an event targets a routing key
	// that was not created during initialization.
	ErrUnknownRoutingKey = errors.New("hubship: unknown routing key")

	// ErrMalformedRecord is returned when a change log line cannot be parsed.
	// The line stays unconsumed, so the error repeats until the log is fixed;
	// the connector treats it as fatal rather than retrying past it.
	ErrMalformedRecord = errors.New("hubship: malformed change log record")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("hubship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("hubship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("hubship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("hubship: invalid configuration")
)
