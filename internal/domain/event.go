package domain

// ChangeEvent represents a single change-data-capture event.
// Events are read from the change log in source order; Offset identifies the
// event's position in the log and is what gets committed after dispatch.
type ChangeEvent struct {
	// Key is the source record key, used for sticky partition routing.
	Key []byte

	// Value is the serialized change payload.
	Value []byte

	// Offset is the event's position in the source change log.
	Offset int64

	// Table is the source table or collection the change belongs to.
	Table string

	// Timestamp is the source change time in unix nanoseconds.
	Timestamp int64
}

// SizeBytes returns the wire-size estimate used for batch capacity accounting.
func (e ChangeEvent) SizeBytes() int {
	return len(e.Key) + len(e.Value)
}

// EventMeta is the JSON shape of an event on the hub ingestion API.
type EventMeta struct {
	Key       []byte `json:"key,omitempty"`
	Value     []byte `json:"value"`
	Offset    int64  `json:"offset"`
	Table     string `json:"table,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// ToMeta converts a ChangeEvent to EventMeta for JSON serialization.
func (e ChangeEvent) ToMeta() EventMeta {
	return EventMeta{
		Key:       e.Key,
		Value:     e.Value,
		Offset:    e.Offset,
		Table:     e.Table,
		Timestamp: e.Timestamp,
	}
}

// ToEvent converts EventMeta back to a ChangeEvent domain entity.
func (m EventMeta) ToEvent() ChangeEvent {
	return ChangeEvent{
		Key:       m.Key,
		Value:     m.Value,
		Offset:    m.Offset,
		Table:     m.Table,
		Timestamp: m.Timestamp,
	}
}
