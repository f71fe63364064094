package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...ports.Field) {}
func (noopLogger) Info(msg string, fields ...ports.Field)  {}
func (noopLogger) Warn(msg string, fields ...ports.Field)  {}
func (noopLogger) Error(msg string, fields ...ports.Field) {}

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.ndjson")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPollReadsEventsInOrder(t *testing.T) {
	path := writeLog(t, `{"value":"YQ==","table":"users"}`+"\n"+`{"value":"Yg==","table":"orders"}`+"\n")
	reader := NewChangeLogReader(path, 10*time.Millisecond, noopLogger{})
	if err := reader.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	events, err := reader.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Table != "users" || events[1].Table != "orders" {
		t.Errorf("tables = %q, %q, want users, orders", events[0].Table, events[1].Table)
	}
	if events[0].Offset >= events[1].Offset {
		t.Errorf("offsets not increasing: %d, %d", events[0].Offset, events[1].Offset)
	}

	// Drained: next poll reports no more events.
	if _, err := reader.Poll(context.Background()); !errors.Is(err, ports.ErrNoMoreEvents) {
		t.Errorf("Poll after drain = %v, want ErrNoMoreEvents", err)
	}
}

func TestPollResumesAfterCommittedOffset(t *testing.T) {
	first := `{"value":"YQ=="}` + "\n"
	path := writeLog(t, first+`{"value":"Yg=="}`+"\n")

	reader := NewChangeLogReader(path, 10*time.Millisecond, noopLogger{})
	state := &domain.State{CommittedOffset: int64(len(first))}
	if err := reader.Open(context.Background(), state); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	events, err := reader.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if string(events[0].Value) != "b" {
		t.Errorf("Value = %q, want %q", events[0].Value, "b")
	}
}

func TestPollIgnoresPartialTrailingLine(t *testing.T) {
	path := writeLog(t, `{"value":"YQ=="}`+"\n"+`{"table":"t","value":"Yg`)
	reader := NewChangeLogReader(path, 10*time.Millisecond, noopLogger{})
	if err := reader.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	events, err := reader.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (partial line held back)", len(events))
	}

	// Completing the line makes the event visible on the next poll.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("==\"}\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err = reader.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll after append: %v", err)
	}
	if len(events) != 1 || events[0].Table != "t" {
		t.Fatalf("events = %+v, want the completed line", events)
	}
}

func TestPollRejectsMalformedLine(t *testing.T) {
	path := writeLog(t, "not json at all\n")
	reader := NewChangeLogReader(path, 10*time.Millisecond, noopLogger{})
	if err := reader.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Poll(context.Background()); !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("Poll = %v, want ErrMalformedRecord", err)
	}
}

func TestPollDeliversEventsBeforeMalformedLine(t *testing.T) {
	path := writeLog(t, `{"value":"YQ=="}`+"\nnot json\n"+`{"value":"Yw=="}`+"\n")
	reader := NewChangeLogReader(path, 10*time.Millisecond, noopLogger{})
	if err := reader.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	// The window ends before the bad line; everything parsed so far must
	// still be delivered, without an error.
	events, err := reader.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || string(events[0].Value) != "a" {
		t.Fatalf("events = %+v, want just the first event", events)
	}

	// The bad line stays put: every following poll reports it instead of
	// skipping ahead and dropping the events behind it.
	for i := 0; i < 2; i++ {
		if _, err := reader.Poll(context.Background()); !errors.Is(err, domain.ErrMalformedRecord) {
			t.Fatalf("Poll %d = %v, want ErrMalformedRecord", i, err)
		}
	}
}

func TestNoMoreEventsDistinctFromEOF(t *testing.T) {
	// An EOF surfacing from some unrelated read path must not be mistaken
	// for a drained change log.
	err := fmt.Errorf("read index: %w", io.EOF)
	if errors.Is(err, ports.ErrNoMoreEvents) {
		t.Error("wrapped io.EOF reads as ErrNoMoreEvents")
	}
}

func TestWaitForChangeWakesOnWrite(t *testing.T) {
	path := writeLog(t, "")
	reader := NewChangeLogReader(path, 5*time.Second, noopLogger{})
	if err := reader.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		done <- reader.WaitForChange(ctx)
	}()

	// Give the watcher goroutine a moment to block, then append.
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"value":"YQ=="}` + "\n")
	f.Close()

	if err := <-done; err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
}

func TestOpenMissingLog(t *testing.T) {
	reader := NewChangeLogReader(filepath.Join(t.TempDir(), "missing.ndjson"), time.Second, noopLogger{})
	if err := reader.Open(context.Background(), nil); err == nil {
		t.Fatal("Open = nil, want error for missing change log")
	}
}
