package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/shiplabs/hubship/internal/dispatch"
	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// ConnectorConfig contains configuration for the connector loop.
type ConnectorConfig struct {
	PartitionID   string
	PartitionKey  string
	MaxBatchBytes int
	PollInterval  time.Duration
	Once          bool
}

// Connector orchestrates the dispatch loop: it polls the change reader for
// record windows, runs one dispatcher cycle per window, and repeats until the
// context is canceled. Routing decisions are made here, not in the dispatcher.
type Connector struct {
	config     ConnectorConfig
	reader     ports.ChangeReader
	committer  ports.RecordCommitter
	stateRepo  ports.StateRepository
	dispatcher *dispatch.Dispatcher
	logger     ports.Logger
}

// NewConnector creates a new connector with the given dependencies.
func NewConnector(
	config ConnectorConfig,
	reader ports.ChangeReader,
	producer ports.PartitionProducer,
	committer ports.RecordCommitter,
	stateRepo ports.StateRepository,
	logger ports.Logger,
) *Connector {
	dispatcher := dispatch.New(producer, dispatch.Config{
		PartitionID:   config.PartitionID,
		PartitionKey:  config.PartitionKey,
		MaxBatchBytes: config.MaxBatchBytes,
	}, logger)

	return &Connector{
		config:     config,
		reader:     reader,
		committer:  committer,
		stateRepo:  stateRepo,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run executes the main connector loop.
// It polls change events, dispatches them in per-partition batches, and
// returns when the context is canceled or a fatal dispatch error occurs.
func (c *Connector) Run(ctx context.Context) error {
	state, err := c.stateRepo.Load(ctx)
	if err != nil {
		c.logger.Error("failed to load state", ports.Err(err))
		// Continue with empty state
	}

	if err := c.reader.Open(ctx, &state); err != nil {
		return err
	}
	defer c.reader.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		records, err := c.reader.Poll(ctx)
		if err != nil {
			if errors.Is(err, ports.ErrNoMoreEvents) {
				if c.config.Once {
					return nil
				}
				if err := c.reader.WaitForChange(ctx); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrMalformedRecord) {
				// The reader holds its position on a malformed line, so
				// retrying would spin on the same error forever.
				return err
			}

			// Read error, log and retry after a delay
			c.logger.Error("read error", ports.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.PollInterval):
				continue
			}
		}

		if err := c.runCycle(ctx, records); err != nil {
			// Dispatch errors are fatal at this layer: oversized events,
			// transmission failures, and commit failures all escalate.
			c.logger.Error("dispatch cycle failed", ports.Err(err))
			return err
		}

		c.logger.Info("dispatched cycle",
			ports.Int("records", len(records)),
		)
	}
}

// runCycle runs one full dispatch cycle over a record window.
func (c *Connector) runCycle(ctx context.Context, records []domain.ChangeEvent) error {
	if err := c.dispatcher.Initialize(ctx, records, c.committer); err != nil {
		return err
	}

	keys := c.dispatcher.Keys()
	if len(keys) == 0 && len(records) > 0 {
		return fmt.Errorf("%w: registry has no partitions", domain.ErrInvalidConfig)
	}
	for i, record := range records {
		key := c.route(record, keys)
		if err := c.dispatcher.Append(ctx, record, i, key); err != nil {
			return err
		}
	}

	if err := c.dispatcher.CloseAndFlushAll(ctx); err != nil {
		return err
	}

	return c.syncCommits(ctx)
}

// syncCommits persists the committed offset when the committer defers
// persistence, once per cycle instead of once per event.
func (c *Connector) syncCommits(ctx context.Context) error {
	s, ok := c.committer.(interface{ Sync(ctx context.Context) error })
	if !ok {
		return nil
	}
	if err := s.Sync(ctx); err != nil {
		return fmt.Errorf("%w: persist committed state: %w", domain.ErrCommit, err)
	}
	return nil
}

// route picks the registry slot for an event. Fixed-partition and sticky-key
// modes have a single slot; fan-out hashes the event key across all
// partitions so events with the same key land on the same partition.
func (c *Connector) route(event domain.ChangeEvent, keys []dispatch.RoutingKey) dispatch.RoutingKey {
	if c.dispatcher.Mode() != dispatch.ModeFanOut || len(keys) == 1 {
		return keys[0]
	}

	if len(event.Key) == 0 {
		// Keyless events spread by source position.
		return keys[int(event.Offset%int64(len(keys)))]
	}

	h := fnv.New32a()
	h.Write(event.Key)
	return keys[int(h.Sum32()%uint32(len(keys)))]
}
