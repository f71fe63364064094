package fs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// DefaultMaxPollRecords caps how many events one Poll returns.
const DefaultMaxPollRecords = 512

// ChangeLogReader implements ports.ChangeReader over an append-only NDJSON
// change log. Each line is one serialized change event; an event's Offset is
// the byte position immediately after its line, so the committed offset is
// always a valid resume position.
type ChangeLogReader struct {
	path           string
	pollInterval   time.Duration
	maxPollRecords int
	logger         ports.Logger

	file    *os.File
	scanner *bufio.Reader
	offset  int64
	watcher *fsnotify.Watcher
}

// NewChangeLogReader creates a reader for the change log at path.
func NewChangeLogReader(path string, pollInterval time.Duration, logger ports.Logger) *ChangeLogReader {
	return &ChangeLogReader{
		path:           path,
		pollInterval:   pollInterval,
		maxPollRecords: DefaultMaxPollRecords,
		logger:         logger,
	}
}

// Open prepares the reader, resuming after the committed offset in state.
// A watch on the log's directory wakes WaitForChange when the file grows.
func (r *ChangeLogReader) Open(ctx context.Context, state *domain.State) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open change log: %w", err)
	}

	r.offset = 0
	if state != nil {
		r.offset = state.CommittedOffset
	}
	if _, err := file.Seek(r.offset, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("seek change log: %w", err)
	}

	r.file = file
	r.scanner = bufio.NewReader(file)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Fall back to interval polling only.
		r.logger.Warn("change watcher unavailable, polling only", ports.Err(err))
		return nil
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		r.logger.Warn("watch change log directory failed, polling only", ports.Err(err))
		watcher.Close()
		return nil
	}
	r.watcher = watcher
	return nil
}

// Poll returns the next window of change events in source order.
// Returns ErrNoMoreEvents when the log has no complete new lines. A line that
// does not parse ends the window: events before it are returned first, then
// the next poll reports ErrMalformedRecord without consuming the line.
func (r *ChangeLogReader) Poll(ctx context.Context) ([]domain.ChangeEvent, error) {
	if r.file == nil {
		return nil, fmt.Errorf("change log reader not open")
	}

	var events []domain.ChangeEvent
	for len(events) < r.maxPollRecords {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := r.scanner.ReadBytes('\n')
		if err != nil {
			// A partial trailing line stays unread until the writer
			// completes it; rewind so the next Poll retries it whole.
			if len(line) > 0 {
				if _, seekErr := r.file.Seek(r.offset, io.SeekStart); seekErr != nil {
					return events, seekErr
				}
				r.scanner.Reset(r.file)
			}
			break
		}

		next := r.offset + int64(len(line))
		if len(line) <= 1 {
			r.offset = next
			continue
		}

		var meta domain.EventMeta
		if err := json.Unmarshal(line, &meta); err != nil {
			// Leave the bad line unconsumed so the events collected before
			// it are delivered now; the error surfaces on the next poll and
			// keeps repeating, never silently skipping the line.
			if _, seekErr := r.file.Seek(r.offset, io.SeekStart); seekErr != nil {
				return events, seekErr
			}
			r.scanner.Reset(r.file)
			if len(events) > 0 {
				return events, nil
			}
			return nil, fmt.Errorf("%w: line ending at offset %d: %w", domain.ErrMalformedRecord, next, err)
		}
		r.offset = next
		event := meta.ToEvent()
		event.Offset = next
		events = append(events, event)
	}

	if len(events) == 0 {
		return nil, ports.ErrNoMoreEvents
	}
	return events, nil
}

// WaitForChange blocks until the log may have new data, the poll interval
// elapses, or the context is canceled.
func (r *ChangeLogReader) WaitForChange(ctx context.Context) error {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	if r.watcher == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	base := filepath.Base(r.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			return nil
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("change watcher error")
		}
	}
}

// Close releases all resources held by the reader.
func (r *ChangeLogReader) Close() error {
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
