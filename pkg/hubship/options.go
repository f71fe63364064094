package hubship

import (
	"net/http"

	"github.com/rs/zerolog"

	logAdapter "github.com/shiplabs/hubship/internal/adapters/log"
	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = ports.Logger

// LogField represents a structured log field.
type LogField = ports.Field

// Re-export the port types so embedders can supply their own implementations.
type (
	// ChangeEvent is a single change-data-capture event.
	ChangeEvent = domain.ChangeEvent

	// BatchOptions configures a batch created by a PartitionProducer.
	BatchOptions = domain.BatchOptions

	// PartitionProducer creates, fills, and transmits per-partition batches.
	PartitionProducer = ports.PartitionProducer

	// EventBatch is a size-capped accumulator of change events.
	EventBatch = ports.EventBatch

	// RecordCommitter acknowledges events after their batch was transmitted.
	RecordCommitter = ports.RecordCommitter
)

// Option configures optional behavior of Hubship.
type Option func(*options)

// options holds the optional configuration for a Hubship instance.
type options struct {
	httpClient ports.HTTPClient
	logger     ports.Logger
	producer   ports.PartitionProducer
	committer  ports.RecordCommitter
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
	}
}

// WithHTTPClient sets a custom HTTP client for hub communication.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProducer replaces the default HTTP hub producer.
// Useful for embedding Hubship against a custom transport.
func WithProducer(producer PartitionProducer) Option {
	return func(o *options) {
		o.producer = producer
	}
}

// WithCommitter replaces the default file-backed offset committer.
func WithCommitter(committer RecordCommitter) Option {
	return func(o *options) {
		o.committer = committer
	}
}

// NewZerologLogger adapts a zerolog.Logger to the Logger interface.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return logAdapter.NewZerologAdapterWithLogger(logger)
}
