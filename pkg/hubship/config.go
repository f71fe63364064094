package hubship

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultServiceURL is the default endpoint of the hub ingestion service.
const DefaultServiceURL = "https://api.hubship.dev"

// Config holds the configuration for a Hubship instance.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// ChangeLog is the path to the NDJSON change log to ship.
	ChangeLog string

	// StateDir holds the committed-offset file (status.json).
	// Defaults to the change log's directory.
	StateDir string

	// ServiceURL is the base URL of the hub ingestion service.
	ServiceURL string

	// AuthKey is the API key sent as a bearer token.
	AuthKey string

	// PartitionID routes every event to one literal partition when set.
	// Takes precedence over PartitionKey.
	PartitionID string

	// PartitionKey routes every event under one sticky key when set.
	PartitionKey string

	// MaxBatchBytes caps the serialized size of each batch.
	// Zero uses the transport default.
	MaxBatchBytes int

	// PollInterval is how often the change log is polled for new events.
	PollInterval time.Duration

	// HTTPTimeout bounds each HTTP request to the hub.
	HTTPTimeout time.Duration

	// Once processes the available change log and exits.
	Once bool
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set ChangeLog before calling New.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in default values for unset fields.
func (c *Config) SetDefaults() {
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ChangeLog == "" {
		return fmt.Errorf("change log path is required")
	}

	if c.StateDir == "" {
		c.StateDir = filepath.Dir(c.ChangeLog)
	}

	// Ensure no trailing slash
	if len(c.ServiceURL) > 0 && c.ServiceURL[len(c.ServiceURL)-1] == '/' {
		c.ServiceURL = c.ServiceURL[:len(c.ServiceURL)-1]
	}

	if c.PartitionID != "" {
		if id, err := strconv.Atoi(c.PartitionID); err != nil || id < 0 {
			return fmt.Errorf("partition id must be a non-negative integer, got %q", c.PartitionID)
		}
	}

	if c.MaxBatchBytes < 0 {
		return fmt.Errorf("max batch bytes must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	return nil
}
