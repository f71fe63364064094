package ports

import (
	"context"
	"errors"

	"github.com/shiplabs/hubship/internal/domain"
)

// ChangeReader provides access to change events from the source change log.
// Implementations read from an append-only log and resume after the offset
// recorded in the connector state.
type ChangeReader interface {
	// Open prepares the reader starting from the given state.
	// If state is nil or empty, starts from the beginning of the log.
	Open(ctx context.Context, state *domain.State) error

	// Poll returns the next window of change events in source order.
	// Returns ErrNoMoreEvents when no events are available; the caller
	// should wait and retry. Returns other errors for unrecoverable issues.
	Poll(ctx context.Context) ([]domain.ChangeEvent, error)

	// WaitForChange blocks until new data may be available, the poll
	// interval elapses, or the context is canceled.
	WaitForChange(ctx context.Context) error

	// Close releases all resources held by the reader.
	Close() error
}

// ErrNoMoreEvents indicates that there are no more events to read.
// The caller should poll and retry after a delay. A distinct sentinel, not
// io.EOF, so wrapped EOFs from unrelated I/O never read as a drained log.
var ErrNoMoreEvents = errors.New("hubship: no more events")
