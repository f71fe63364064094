package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// Config holds the routing-mode inputs for a dispatcher.
// PartitionID takes precedence over PartitionKey; when both are empty the
// dispatcher fans out across all partitions known to the hub.
type Config struct {
	// PartitionID targets a single literal partition when non-empty.
	PartitionID string

	// PartitionKey routes every event under one sticky key when non-empty.
	PartitionKey string

	// MaxBatchBytes caps each batch's serialized size. Zero means the
	// transport default applies.
	MaxBatchBytes int
}

// slot is the per-routing-key registry entry. The batch and pending list are
// exclusively owned by the slot; overflow replaces the batch wholesale rather
// than mutating it in place.
type slot struct {
	opts    domain.BatchOptions
	batch   ports.EventBatch
	pending []int
}

// Dispatcher accumulates change events into size-bounded per-partition
// batches, flushes full batches through the producer, and commits each
// event's record index only after its batch was confirmed transmitted.
//
// A dispatcher is single-threaded per cycle: Initialize binds the record list
// and commit handle for one cycle, Append is called once per event in caller
// order, and CloseAndFlushAll ends the cycle. Re-initializing discards all
// prior registry state.
type Dispatcher struct {
	producer ports.PartitionProducer
	config   Config
	logger   ports.Logger

	mode  RoutingMode
	slots map[RoutingKey]*slot

	// Per-cycle bindings, replaced on every Initialize.
	records   []domain.ChangeEvent
	committer ports.RecordCommitter
}

// New creates a dispatcher over the given producer. The routing mode is not
// resolved until Initialize.
func New(producer ports.PartitionProducer, config Config, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		producer: producer,
		config:   config,
		logger:   logger,
		slots:    make(map[RoutingKey]*slot),
	}
}

// Initialize resolves the routing mode and populates the registry for one
// dispatch cycle. It binds records and committer for the cycle, replacing any
// prior bindings, and allocates one empty batch and pending list per slot.
func (d *Dispatcher) Initialize(ctx context.Context, records []domain.ChangeEvent, committer ports.RecordCommitter) error {
	d.records = records
	d.committer = committer
	d.slots = make(map[RoutingKey]*slot)

	switch {
	case d.config.PartitionID != "":
		d.mode = ModeFixedPartition
		id, err := strconv.Atoi(d.config.PartitionID)
		if err != nil || id < 0 {
			return fmt.Errorf("%w: invalid partition id %q", domain.ErrInvalidConfig, d.config.PartitionID)
		}
		opts := domain.BatchOptions{
			PartitionID:  d.config.PartitionID,
			MaxSizeBytes: d.config.MaxBatchBytes,
		}
		return d.createSlot(ForPartition(id), opts)

	case d.config.PartitionKey != "":
		d.mode = ModeStickyKey
		opts := domain.BatchOptions{
			PartitionKey: d.config.PartitionKey,
			MaxSizeBytes: d.config.MaxBatchBytes,
		}
		return d.createSlot(ForStickyKey(), opts)

	default:
		d.mode = ModeFanOut
		ids, err := d.producer.PartitionIDs(ctx)
		if err != nil {
			return fmt.Errorf("list partition ids: %w", err)
		}
		for _, raw := range ids {
			id, err := strconv.Atoi(raw)
			if err != nil || id < 0 {
				return fmt.Errorf("%w: hub reported partition id %q", domain.ErrInvalidConfig, raw)
			}
			opts := domain.BatchOptions{
				PartitionID:  raw,
				MaxSizeBytes: d.config.MaxBatchBytes,
			}
			if err := d.createSlot(ForPartition(id), opts); err != nil {
				return err
			}
		}
		d.logger.Debug("registry initialized",
			ports.String("mode", d.mode.String()),
			ports.Int("slots", len(d.slots)),
		)
		return nil
	}
}

// createSlot allocates a registry entry with a fresh batch and pending list.
func (d *Dispatcher) createSlot(key RoutingKey, opts domain.BatchOptions) error {
	batch, err := d.producer.CreateBatch(opts)
	if err != nil {
		return fmt.Errorf("create batch for %s: %w", key, err)
	}
	d.slots[key] = &slot{opts: opts, batch: batch}
	return nil
}

// Mode returns the routing mode resolved by the last Initialize.
func (d *Dispatcher) Mode() RoutingMode {
	return d.mode
}

// Keys returns the registry's routing keys in deterministic order, partition
// slots sorted by id. Callers use this to route events in fan-out mode.
func (d *Dispatcher) Keys() []RoutingKey {
	keys := make([]RoutingKey, 0, len(d.slots))
	for k := range d.slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].partition < keys[j].partition
	})
	return keys
}

// Append attempts to add event to the batch registered under key, recording
// recordIndex as pending commit on success.
//
// When the batch rejects the event: an empty batch means the event alone
// exceeds the maximum batch size, which is fatal. A non-empty batch is simply
// full, so it is flushed synchronously, a fresh batch is created from the
// slot's options, and the append is retried once against the new batch.
func (d *Dispatcher) Append(ctx context.Context, event domain.ChangeEvent, recordIndex int, key RoutingKey) error {
	s, ok := d.slots[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRoutingKey, key)
	}

	if s.batch.TryAdd(event) {
		s.pending = append(s.pending, recordIndex)
		return nil
	}

	if s.batch.Count() == 0 {
		// The very first event did not fit: it exceeds the maximum batch
		// size and cannot be split, so there is no safe way to dispatch it.
		return fmt.Errorf("%w: %d bytes at index %d", domain.ErrOversizedEvent, event.SizeBytes(), recordIndex)
	}

	d.logger.Debug("maximum batch size reached, dispatching batch",
		ports.String("key", key.String()),
		ports.Int("events", s.batch.Count()),
	)

	if err := d.flushSlot(ctx, key, s); err != nil {
		return err
	}

	fresh, err := d.producer.CreateBatch(s.opts)
	if err != nil {
		return fmt.Errorf("recreate batch for %s: %w", key, err)
	}
	s.batch = fresh
	s.pending = nil

	if !s.batch.TryAdd(event) {
		return fmt.Errorf("%w: %d bytes at index %d", domain.ErrOversizedEvent, event.SizeBytes(), recordIndex)
	}
	s.pending = append(s.pending, recordIndex)
	return nil
}

// Flush transmits the batch registered under key and commits its pending
// record indices. No-op when the batch is empty.
func (d *Dispatcher) Flush(ctx context.Context, key RoutingKey) error {
	s, ok := d.slots[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRoutingKey, key)
	}
	if err := d.flushSlot(ctx, key, s); err != nil {
		return err
	}
	return d.resetSlot(key, s)
}

// CloseAndFlushAll flushes every non-empty batch in the registry. Keys are
// independent; no cross-key ordering is guaranteed. Intended to run once at
// the end of a dispatch cycle, after all events were offered via Append.
func (d *Dispatcher) CloseAndFlushAll(ctx context.Context) error {
	for key, s := range d.slots {
		if s.batch.Count() == 0 {
			continue
		}
		d.logger.Debug("dispatching final batch",
			ports.String("key", key.String()),
			ports.Int("events", s.batch.Count()),
		)
		if err := d.flushSlot(ctx, key, s); err != nil {
			return err
		}
		if err := d.resetSlot(key, s); err != nil {
			return err
		}
	}
	return nil
}

// flushSlot transmits the slot's batch, then marks every pending record index
// as processed in append order. Transmission always precedes the first commit
// call; a commit failure leaves earlier commits standing.
func (d *Dispatcher) flushSlot(ctx context.Context, key RoutingKey, s *slot) error {
	if s.batch.Count() == 0 {
		return nil
	}

	if err := d.producer.Send(ctx, s.batch); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransmission, key, err)
	}

	d.logger.Debug("sent batch",
		ports.String("key", key.String()),
		ports.Int("events", s.batch.Count()),
		ports.Int("bytes", s.batch.SizeBytes()),
	)

	for _, idx := range s.pending {
		record := d.records[idx]
		if err := d.committer.MarkProcessed(record); err != nil {
			return fmt.Errorf("%w: record index %d: %w", domain.ErrCommit, idx, err)
		}
	}
	return nil
}

// resetSlot gives the slot a fresh batch and pending list after a flush so a
// repeated flush performs no duplicate transmission.
func (d *Dispatcher) resetSlot(key RoutingKey, s *slot) error {
	if s.batch.Count() == 0 {
		return nil
	}
	fresh, err := d.producer.CreateBatch(s.opts)
	if err != nil {
		return fmt.Errorf("recreate batch for %s: %w", key, err)
	}
	s.batch = fresh
	s.pending = nil
	return nil
}
