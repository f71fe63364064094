package ports

import (
	"context"

	"github.com/shiplabs/hubship/internal/domain"
)

// PartitionProducer is the transport client for a partitioned event hub.
// Implementations handle serialization, communication, authentication, and
// their own retry policy; the dispatcher never retries a send.
type PartitionProducer interface {
	// PartitionIDs returns the full set of partition ids known to the hub.
	// Used by fan-out routing to pre-create one batch per partition.
	PartitionIDs(ctx context.Context) ([]string, error)

	// CreateBatch allocates an empty batch buffer for the given options.
	CreateBatch(opts domain.BatchOptions) (EventBatch, error)

	// Send transmits a batch to the hub.
	// Returns nil on success, error on failure.
	Send(ctx context.Context, batch EventBatch) error
}

// EventBatch is a transport-provided batch buffer. It is append-only until
// sent and enforces its own byte-size cap.
type EventBatch interface {
	// TryAdd appends an event to the batch. Returns false when the event
	// does not fit under the batch's maximum size; the batch is unchanged.
	TryAdd(event domain.ChangeEvent) bool

	// Count returns the number of events currently in the batch.
	Count() int

	// SizeBytes returns the serialized size of the batch so far.
	SizeBytes() int
}

// RecordCommitter marks change events as durably processed.
// MarkProcessed is only ever invoked for events whose batch was confirmed
// transmitted.
type RecordCommitter interface {
	MarkProcessed(event domain.ChangeEvent) error
}
