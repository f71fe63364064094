// Package dispatch implements the batching and dispatch core of the
// connector: a per-partition batch registry that accumulates change events
// into size-bounded batches, flushes full batches through the partition
// producer, and commits record indices only after confirmed transmission.
//
// The dispatcher supports three mutually exclusive routing modes, resolved
// once per cycle: a fixed partition id, a sticky partition key, or fan-out
// across every partition the hub reports. Routing decisions themselves are
// supplied by the caller; the dispatcher only manages batches once a target
// key is known.
package dispatch
