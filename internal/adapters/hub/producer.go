// Package hub implements the PartitionProducer port against the hub
// ingestion HTTP API.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

const (
	partitionsEndpoint = "/v1/hub/partitions"
	batchEndpoint      = "/v1/hub/batch"
)

// DefaultMaxBatchBytes is the transport default batch cap, applied when batch
// options leave the maximum size unset.
const DefaultMaxBatchBytes = 1 << 20

// Config holds the settings for the hub producer.
type Config struct {
	// ServiceURL is the base URL of the hub ingestion service.
	ServiceURL string

	// AuthKey is the API key sent as a bearer token.
	AuthKey string

	// MaxElapsedTime bounds the retry window for a single send.
	// Zero uses a 30 second default.
	MaxElapsedTime time.Duration
}

// Producer implements ports.PartitionProducer over HTTP. Transient failures
// (network errors, 5xx responses) are retried with exponential backoff;
// 4xx responses fail immediately.
type Producer struct {
	config Config
	client ports.HTTPClient
	logger ports.Logger
}

// NewProducer creates a new hub producer.
func NewProducer(config Config, client ports.HTTPClient, logger ports.Logger) *Producer {
	if config.MaxElapsedTime <= 0 {
		config.MaxElapsedTime = 30 * time.Second
	}
	return &Producer{
		config: config,
		client: client,
		logger: logger,
	}
}

// PartitionIDs returns the partition ids known to the hub.
func (p *Producer) PartitionIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ServiceURL+partitionsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.AuthKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list partitions: server returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Partitions []string `json:"partitions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode partitions: %w", err)
	}
	return payload.Partitions, nil
}

// CreateBatch allocates an empty in-memory batch for the given options.
func (p *Producer) CreateBatch(opts domain.BatchOptions) (ports.EventBatch, error) {
	max := opts.MaxSizeBytes
	if max <= 0 {
		max = DefaultMaxBatchBytes
	}
	return &Batch{opts: opts, max: max}, nil
}

// Send transmits a batch to the hub, retrying transient failures with
// exponential backoff until the configured retry window is exhausted.
func (p *Producer) Send(ctx context.Context, batch ports.EventBatch) error {
	b, ok := batch.(*Batch)
	if !ok {
		return fmt.Errorf("send: batch was not created by this producer")
	}
	if b.Count() == 0 {
		return nil
	}

	payload, err := json.Marshal(b.events)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	operation := func() error {
		return p.post(ctx, b.opts, payload)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = p.config.MaxElapsedTime

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	p.logger.Debug("batch accepted by hub",
		ports.Int("events", b.Count()),
		ports.Int("bytes", b.SizeBytes()),
	)
	return nil
}

// post performs one send attempt. Client-side errors from the hub are wrapped
// as permanent so the retry loop stops immediately.
func (p *Producer) post(ctx context.Context, opts domain.BatchOptions, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.ServiceURL+batchEndpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+p.config.AuthKey)
	req.Header.Set("Content-Type", "application/json")
	if opts.PartitionID != "" {
		req.Header.Set("X-Hub-Partition-Id", opts.PartitionID)
	}
	if opts.PartitionKey != "" {
		req.Header.Set("X-Hub-Partition-Key", opts.PartitionKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	respErr := fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	if resp.StatusCode/100 == 4 {
		return backoff.Permanent(respErr)
	}
	return respErr
}
