package dispatch

import "strconv"

// RoutingMode identifies how events are routed to partitions for the lifetime
// of a dispatcher cycle. Exactly one mode is active at a time, resolved once
// during Initialize.
type RoutingMode int

const (
	// ModeFixedPartition sends every event to one configured partition id.
	ModeFixedPartition RoutingMode = iota

	// ModeStickyKey sends every event under one configured partition key;
	// the hub picks the partition from the key.
	ModeStickyKey

	// ModeFanOut spreads events across all partitions known to the hub.
	ModeFanOut
)

// String returns a human-readable representation of the mode.
func (m RoutingMode) String() string {
	switch m {
	case ModeFixedPartition:
		return "fixed-partition"
	case ModeStickyKey:
		return "sticky-key"
	case ModeFanOut:
		return "fan-out"
	default:
		return "unknown"
	}
}

type routingKind int

const (
	kindPartition routingKind = iota
	kindStickyKey
)

// RoutingKey identifies a registry slot. A key is either a literal partition
// id or the single sticky-key slot; the two kinds never collide, so partition
// id 0 and the sticky-key slot are distinct keys.
type RoutingKey struct {
	kind      routingKind
	partition int
}

// ForPartition returns the routing key for a literal partition id.
func ForPartition(id int) RoutingKey {
	return RoutingKey{kind: kindPartition, partition: id}
}

// ForStickyKey returns the routing key for the sticky partition-key slot.
func ForStickyKey() RoutingKey {
	return RoutingKey{kind: kindStickyKey}
}

// Partition returns the literal partition id and true, or false for the
// sticky-key slot.
func (k RoutingKey) Partition() (int, bool) {
	if k.kind != kindPartition {
		return 0, false
	}
	return k.partition, true
}

// String returns a human-readable representation of the key.
func (k RoutingKey) String() string {
	if k.kind == kindStickyKey {
		return "sticky-key"
	}
	return "partition-" + strconv.Itoa(k.partition)
}
