package fs

import (
	"context"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// OffsetCommitter implements ports.RecordCommitter by advancing the committed
// source offset in memory. Each marked event moves the offset forward; an
// event behind the committed offset is a no-op, which makes redelivered
// events safe to mark again. Persistence is deferred to Sync, so a cycle of
// commits costs one state write instead of one per event.
type OffsetCommitter struct {
	repo  ports.StateRepository
	state domain.State
	dirty bool
}

// NewOffsetCommitter creates a committer starting from the given state.
func NewOffsetCommitter(repo ports.StateRepository, initial domain.State) *OffsetCommitter {
	return &OffsetCommitter{repo: repo, state: initial}
}

// MarkProcessed records the event's offset as dispatched.
// The offset is not durable until the next Sync.
func (c *OffsetCommitter) MarkProcessed(event domain.ChangeEvent) error {
	if event.Offset <= c.state.CommittedOffset {
		return nil
	}
	c.state.UpdateAfterCommit(event.Offset)
	c.dirty = true
	return nil
}

// Sync persists the committed offset if it advanced since the last Sync.
func (c *OffsetCommitter) Sync(ctx context.Context) error {
	if !c.dirty {
		return nil
	}
	if err := c.repo.Save(ctx, c.state); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// State returns the committer's current view of the connector state.
func (c *OffsetCommitter) State() domain.State {
	return c.state
}
