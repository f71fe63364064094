package hub

import (
	"encoding/json"

	"github.com/shiplabs/hubship/internal/domain"
)

// Batch is the in-memory event buffer sent to the hub as one request.
// It accounts capacity by serialized event size, so TryAdd rejects exactly
// the events the wire payload could not carry.
type Batch struct {
	opts   domain.BatchOptions
	max    int
	events []domain.EventMeta
	size   int
}

// TryAdd appends an event when it fits under the batch's size cap.
// The batch is unchanged when false is returned.
func (b *Batch) TryAdd(event domain.ChangeEvent) bool {
	encoded, err := json.Marshal(event.ToMeta())
	if err != nil {
		return false
	}
	if b.size+len(encoded) > b.max {
		return false
	}
	b.events = append(b.events, event.ToMeta())
	b.size += len(encoded)
	return true
}

// Count returns the number of events in the batch.
func (b *Batch) Count() int {
	return len(b.events)
}

// SizeBytes returns the serialized size of the batch so far.
func (b *Batch) SizeBytes() int {
	return b.size
}
