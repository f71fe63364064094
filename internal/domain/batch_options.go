package domain

// BatchOptions holds the per-slot options used to create a transport batch.
// Options are built once per registry slot at initialization and reused
// whenever that slot's batch is recreated after an overflow flush.
//
// PartitionID and PartitionKey are mutually exclusive; when both are empty the
// service assigns the partition.
type BatchOptions struct {
	// PartitionID targets a specific partition when non-empty.
	PartitionID string

	// PartitionKey routes all events with the same key to the same partition.
	PartitionKey string

	// MaxSizeBytes caps the serialized batch size. Zero means the transport
	// default applies.
	MaxSizeBytes int
}
