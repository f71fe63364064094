package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// fakeBatch implements ports.EventBatch with a byte-size cap.
type fakeBatch struct {
	opts   domain.BatchOptions
	max    int
	events []domain.ChangeEvent
	size   int
}

func (b *fakeBatch) TryAdd(event domain.ChangeEvent) bool {
	if b.max > 0 && b.size+event.SizeBytes() > b.max {
		return false
	}
	b.events = append(b.events, event)
	b.size += event.SizeBytes()
	return true
}

func (b *fakeBatch) Count() int     { return len(b.events) }
func (b *fakeBatch) SizeBytes() int { return b.size }

// fakeProducer implements ports.PartitionProducer, recording every created
// batch and every send.
type fakeProducer struct {
	partitions []string
	defaultMax int

	created []*fakeBatch
	sent    [][]domain.ChangeEvent

	listErr error
	sendErr error
}

func (p *fakeProducer) PartitionIDs(ctx context.Context) ([]string, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.partitions, nil
}

func (p *fakeProducer) CreateBatch(opts domain.BatchOptions) (ports.EventBatch, error) {
	max := opts.MaxSizeBytes
	if max == 0 {
		max = p.defaultMax
	}
	b := &fakeBatch{opts: opts, max: max}
	p.created = append(p.created, b)
	return b, nil
}

func (p *fakeProducer) Send(ctx context.Context, batch ports.EventBatch) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	fb := batch.(*fakeBatch)
	events := make([]domain.ChangeEvent, len(fb.events))
	copy(events, fb.events)
	p.sent = append(p.sent, events)
	return nil
}

// fakeCommitter records committed offsets and can fail at a fixed call count.
type fakeCommitter struct {
	marked []int64
	failAt int // fail when len(marked) == failAt; -1 disables
}

func newFakeCommitter() *fakeCommitter {
	return &fakeCommitter{failAt: -1}
}

func (c *fakeCommitter) MarkProcessed(event domain.ChangeEvent) error {
	if c.failAt >= 0 && len(c.marked) == c.failAt {
		return errors.New("commit refused")
	}
	c.marked = append(c.marked, event.Offset)
	return nil
}

// event builds a ChangeEvent whose SizeBytes is exactly size.
func event(offset int64, size int) domain.ChangeEvent {
	return domain.ChangeEvent{Value: make([]byte, size), Offset: offset}
}

func noopLogger() ports.Logger { return noop{} }

type noop struct{}

func (noop) Debug(msg string, fields ...ports.Field) {}
func (noop) Info(msg string, fields ...ports.Field)  {}
func (noop) Warn(msg string, fields ...ports.Field)  {}
func (noop) Error(msg string, fields ...ports.Field) {}

func TestInitializeFixedPartition(t *testing.T) {
	producer := &fakeProducer{partitions: []string{"0", "1", "2"}}
	d := New(producer, Config{PartitionID: "2", MaxBatchBytes: 64}, noopLogger())

	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if d.Mode() != ModeFixedPartition {
		t.Errorf("Mode() = %v, want %v", d.Mode(), ModeFixedPartition)
	}
	keys := d.Keys()
	if len(keys) != 1 {
		t.Fatalf("len(Keys()) = %d, want 1", len(keys))
	}
	if id, ok := keys[0].Partition(); !ok || id != 2 {
		t.Errorf("Keys()[0] = %v, want partition-2", keys[0])
	}
	if got := producer.created[0].opts.PartitionID; got != "2" {
		t.Errorf("batch options partition id = %q, want %q", got, "2")
	}
	if got := producer.created[0].opts.MaxSizeBytes; got != 64 {
		t.Errorf("batch options max size = %d, want 64", got)
	}
}

func TestInitializePrefersPartitionIDOverKey(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "1", PartitionKey: "orders"}, noopLogger())

	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if d.Mode() != ModeFixedPartition {
		t.Errorf("Mode() = %v, want %v", d.Mode(), ModeFixedPartition)
	}
	if len(d.Keys()) != 1 {
		t.Errorf("len(Keys()) = %d, want 1", len(d.Keys()))
	}
	if got := producer.created[0].opts.PartitionKey; got != "" {
		t.Errorf("batch options partition key = %q, want empty", got)
	}
}

func TestInitializeStickyKey(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionKey: "orders"}, noopLogger())

	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if d.Mode() != ModeStickyKey {
		t.Errorf("Mode() = %v, want %v", d.Mode(), ModeStickyKey)
	}
	keys := d.Keys()
	if len(keys) != 1 || keys[0] != ForStickyKey() {
		t.Fatalf("Keys() = %v, want single sticky-key slot", keys)
	}
	if got := producer.created[0].opts.PartitionKey; got != "orders" {
		t.Errorf("batch options partition key = %q, want %q", got, "orders")
	}
}

func TestInitializeFanOut(t *testing.T) {
	producer := &fakeProducer{partitions: []string{"0", "1", "2", "3"}}
	d := New(producer, Config{MaxBatchBytes: 128}, noopLogger())

	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if d.Mode() != ModeFanOut {
		t.Errorf("Mode() = %v, want %v", d.Mode(), ModeFanOut)
	}
	keys := d.Keys()
	if len(keys) != 4 {
		t.Fatalf("len(Keys()) = %d, want 4", len(keys))
	}
	for i, key := range keys {
		id, ok := key.Partition()
		if !ok || id != i {
			t.Errorf("Keys()[%d] = %v, want partition-%d", i, key, i)
		}
	}
	// One batch per partition, each with its own options.
	if len(producer.created) != 4 {
		t.Errorf("created batches = %d, want 4", len(producer.created))
	}
	for i, b := range producer.created {
		if b.opts.MaxSizeBytes != 128 {
			t.Errorf("batch %d max size = %d, want 128", i, b.opts.MaxSizeBytes)
		}
		if b.opts.PartitionKey != "" {
			t.Errorf("batch %d has partition key %q, want none", i, b.opts.PartitionKey)
		}
	}
}

func TestInitializeFanOutPartitionsIndependentlyFlushable(t *testing.T) {
	producer := &fakeProducer{partitions: []string{"0", "1"}}
	d := New(producer, Config{MaxBatchBytes: 100}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10), event(1, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := d.Append(context.Background(), records[0], 0, ForPartition(0)); err != nil {
		t.Fatalf("Append partition 0: %v", err)
	}
	if err := d.Append(context.Background(), records[1], 1, ForPartition(1)); err != nil {
		t.Fatalf("Append partition 1: %v", err)
	}

	// Flushing one partition leaves the other pending.
	if err := d.Flush(context.Background(), ForPartition(1)); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 1 || committer.marked[0] != 1 {
		t.Errorf("marked = %v, want [1]", committer.marked)
	}

	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}
	if len(producer.sent) != 2 {
		t.Errorf("sends = %d, want 2", len(producer.sent))
	}
	if len(committer.marked) != 2 {
		t.Errorf("commits = %d, want 2", len(committer.marked))
	}
}

func TestInitializeRejectsBadPartitionID(t *testing.T) {
	d := New(&fakeProducer{}, Config{PartitionID: "not-a-number"}, noopLogger())

	err := d.Initialize(context.Background(), nil, newFakeCommitter())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Initialize error = %v, want ErrInvalidConfig", err)
	}
}

func TestAppendCommitsOnlyAfterTransmission(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 100}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10), event(1, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := ForPartition(0)
	for i, record := range records {
		if err := d.Append(context.Background(), record, i, key); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	// Nothing committed before the batch is flushed.
	if len(committer.marked) != 0 {
		t.Fatalf("marked before flush = %v, want none", committer.marked)
	}

	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}

	if len(producer.sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 2 || committer.marked[0] != 0 || committer.marked[1] != 1 {
		t.Errorf("marked = %v, want [0 1]", committer.marked)
	}
}

func TestAppendOverflowFlushesAndRetries(t *testing.T) {
	// Max size fits either event alone but not both combined.
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 15}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10), event(1, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := ForPartition(0)
	if err := d.Append(context.Background(), records[0], 0, key); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	if err := d.Append(context.Background(), records[1], 1, key); err != nil {
		t.Fatalf("Append(1): %v", err)
	}

	// The second append triggered exactly one intermediate flush.
	if len(producer.sent) != 1 {
		t.Fatalf("intermediate sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 1 || committer.marked[0] != 0 {
		t.Fatalf("marked after overflow = %v, want [0]", committer.marked)
	}

	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}

	if len(producer.sent) != 2 {
		t.Errorf("sends = %d, want 2", len(producer.sent))
	}
	if len(committer.marked) != 2 || committer.marked[1] != 1 {
		t.Errorf("marked = %v, want [0 1]", committer.marked)
	}
}

func TestAppendOversizedEvent(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 5}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err := d.Append(context.Background(), records[0], 0, ForPartition(0))
	if !errors.Is(err, domain.ErrOversizedEvent) {
		t.Fatalf("Append error = %v, want ErrOversizedEvent", err)
	}
	if len(producer.sent) != 0 {
		t.Errorf("sends = %d, want 0", len(producer.sent))
	}
	if len(committer.marked) != 0 {
		t.Errorf("marked = %v, want none", committer.marked)
	}
}

func TestAppendOversizedAfterRecreate(t *testing.T) {
	// First event fills the batch; the second does not fit alone either, so
	// the retry against the recreated batch also fails.
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 10}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10), event(1, 11)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := ForPartition(0)
	if err := d.Append(context.Background(), records[0], 0, key); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	err := d.Append(context.Background(), records[1], 1, key)
	if !errors.Is(err, domain.ErrOversizedEvent) {
		t.Fatalf("Append(1) error = %v, want ErrOversizedEvent", err)
	}

	// The full first batch was still flushed and committed.
	if len(producer.sent) != 1 {
		t.Errorf("sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 1 || committer.marked[0] != 0 {
		t.Errorf("marked = %v, want [0]", committer.marked)
	}
}

func TestAppendUnknownRoutingKey(t *testing.T) {
	d := New(&fakeProducer{}, Config{PartitionID: "0"}, noopLogger())
	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err := d.Append(context.Background(), event(0, 1), 0, ForPartition(7))
	if !errors.Is(err, domain.ErrUnknownRoutingKey) {
		t.Errorf("Append error = %v, want ErrUnknownRoutingKey", err)
	}
}

func TestCloseAndFlushAllEmptyRegistry(t *testing.T) {
	producer := &fakeProducer{partitions: []string{"0", "1", "2"}}
	d := New(producer, Config{}, noopLogger())
	committer := newFakeCommitter()

	if err := d.Initialize(context.Background(), nil, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// No appends: zero transmissions and zero commits, twice over.
	for i := 0; i < 2; i++ {
		if err := d.CloseAndFlushAll(context.Background()); err != nil {
			t.Fatalf("CloseAndFlushAll(#%d): %v", i+1, err)
		}
	}
	if len(producer.sent) != 0 {
		t.Errorf("sends = %d, want 0", len(producer.sent))
	}
	if len(committer.marked) != 0 {
		t.Errorf("commits = %d, want 0", len(committer.marked))
	}
}

func TestCloseAndFlushAllIdempotentAfterFlush(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 100}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.Append(context.Background(), records[0], 0, ForPartition(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := d.CloseAndFlushAll(context.Background()); err != nil {
			t.Fatalf("CloseAndFlushAll(#%d): %v", i+1, err)
		}
	}
	if len(producer.sent) != 1 {
		t.Errorf("sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 1 {
		t.Errorf("commits = %d, want 1", len(committer.marked))
	}
}

func TestTransmissionErrorPropagates(t *testing.T) {
	producer := &fakeProducer{sendErr: errors.New("connection reset")}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 100}, noopLogger())
	committer := newFakeCommitter()

	records := []domain.ChangeEvent{event(0, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.Append(context.Background(), records[0], 0, ForPartition(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := d.CloseAndFlushAll(context.Background())
	if !errors.Is(err, domain.ErrTransmission) {
		t.Fatalf("CloseAndFlushAll error = %v, want ErrTransmission", err)
	}
	if len(committer.marked) != 0 {
		t.Errorf("marked = %v, want none after failed send", committer.marked)
	}
}

func TestCommitErrorLeavesEarlierCommitsStanding(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 100}, noopLogger())
	committer := newFakeCommitter()
	committer.failAt = 1 // second commit fails

	records := []domain.ChangeEvent{event(0, 10), event(1, 10)}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	key := ForPartition(0)
	for i, record := range records {
		if err := d.Append(context.Background(), record, i, key); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	err := d.CloseAndFlushAll(context.Background())
	if !errors.Is(err, domain.ErrCommit) {
		t.Fatalf("CloseAndFlushAll error = %v, want ErrCommit", err)
	}
	// The batch was transmitted and the first commit stands.
	if len(producer.sent) != 1 {
		t.Errorf("sends = %d, want 1", len(producer.sent))
	}
	if len(committer.marked) != 1 || committer.marked[0] != 0 {
		t.Errorf("marked = %v, want [0]", committer.marked)
	}
}

func TestFiveEventsThreePerBatch(t *testing.T) {
	// 5 events of 10 bytes with a 30-byte cap: batches of 3 and 2, all five
	// committed in original index order.
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "1", MaxBatchBytes: 30}, noopLogger())
	committer := newFakeCommitter()

	records := make([]domain.ChangeEvent, 5)
	for i := range records {
		records[i] = event(int64(i), 10)
	}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := ForPartition(1)
	for i, record := range records {
		if err := d.Append(context.Background(), record, i, key); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}

	if len(producer.sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(producer.sent))
	}
	if len(producer.sent[0]) != 3 {
		t.Errorf("first batch size = %d, want 3", len(producer.sent[0]))
	}
	if len(producer.sent[1]) != 2 {
		t.Errorf("second batch size = %d, want 2", len(producer.sent[1]))
	}
	if len(committer.marked) != 5 {
		t.Fatalf("commits = %d, want 5", len(committer.marked))
	}
	for i, offset := range committer.marked {
		if offset != int64(i) {
			t.Errorf("commit %d = offset %d, want %d", i, offset, i)
		}
	}
}

func TestReinitializeReplacesRegistry(t *testing.T) {
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 100}, noopLogger())

	first := newFakeCommitter()
	records := []domain.ChangeEvent{event(0, 10)}
	if err := d.Initialize(context.Background(), records, first); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := d.Append(context.Background(), records[0], 0, ForPartition(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Re-initialization discards the un-flushed batch and binds a new cycle.
	second := newFakeCommitter()
	next := []domain.ChangeEvent{event(9, 10)}
	if err := d.Initialize(context.Background(), next, second); err != nil {
		t.Fatalf("Initialize(#2): %v", err)
	}
	if err := d.Append(context.Background(), next[0], 0, ForPartition(0)); err != nil {
		t.Fatalf("Append(#2): %v", err)
	}
	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}

	if len(producer.sent) != 1 || len(producer.sent[0]) != 1 {
		t.Fatalf("sent = %v, want one single-event batch", producer.sent)
	}
	if len(first.marked) != 0 {
		t.Errorf("first cycle marked = %v, want none", first.marked)
	}
	if len(second.marked) != 1 || second.marked[0] != 9 {
		t.Errorf("second cycle marked = %v, want [9]", second.marked)
	}
}

func TestEveryEventCommittedExactlyOnce(t *testing.T) {
	// Random-ish sizes that all fit individually; regardless of how many
	// overflow flushes happen, each event is committed exactly once.
	producer := &fakeProducer{}
	d := New(producer, Config{PartitionID: "0", MaxBatchBytes: 25}, noopLogger())
	committer := newFakeCommitter()

	sizes := []int{10, 5, 12, 8, 20, 3, 14}
	records := make([]domain.ChangeEvent, len(sizes))
	for i, size := range sizes {
		records[i] = event(int64(i), size)
	}
	if err := d.Initialize(context.Background(), records, committer); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := ForPartition(0)
	for i, record := range records {
		if err := d.Append(context.Background(), record, i, key); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := d.CloseAndFlushAll(context.Background()); err != nil {
		t.Fatalf("CloseAndFlushAll: %v", err)
	}

	if len(committer.marked) != len(records) {
		t.Fatalf("commits = %d, want %d", len(committer.marked), len(records))
	}
	seen := make(map[int64]int)
	for _, offset := range committer.marked {
		seen[offset]++
	}
	for i := range records {
		if seen[int64(i)] != 1 {
			t.Errorf("offset %d committed %d times, want 1", i, seen[int64(i)])
		}
	}
	// Total transmitted events match total appended events.
	total := 0
	for _, batch := range producer.sent {
		total += len(batch)
	}
	if total != len(records) {
		t.Errorf("transmitted events = %d, want %d", total, len(records))
	}
}

func TestFanOutListPartitionsError(t *testing.T) {
	producer := &fakeProducer{listErr: fmt.Errorf("hub unavailable")}
	d := New(producer, Config{}, noopLogger())

	if err := d.Initialize(context.Background(), nil, newFakeCommitter()); err == nil {
		t.Fatal("Initialize = nil, want error when partition listing fails")
	}
}
