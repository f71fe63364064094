// Package cliconfig loads CLI configuration for hubship with the precedence
// flags > environment variables > TOML config file > defaults.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultServiceURL is the default endpoint of the hub ingestion service.
const DefaultServiceURL = "https://api.hubship.dev"

// Config holds CLI configuration for hubship.
type Config struct {
	// ChangeLog is the path to the NDJSON change log to ship.
	ChangeLog string

	// StateDir holds status.json; defaults to the change log's directory.
	StateDir string

	ServiceURL string
	AuthKey    string

	// PartitionID routes every event to one literal partition when set.
	PartitionID string

	// PartitionKey routes every event under one sticky key when set.
	PartitionKey string

	// MaxBatchBytes caps each batch; zero uses the transport default.
	MaxBatchBytes int

	PollInterval time.Duration
	HTTPTimeout  time.Duration

	// Once processes the available change log and exits.
	Once bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceURL:   DefaultServiceURL,
		PollInterval: 500 * time.Millisecond,
		HTTPTimeout:  15 * time.Second,
		AuthKey:      os.Getenv("HUBSHIP_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ChangeLog == "" {
		return fmt.Errorf("change-log is required")
	}

	if c.StateDir == "" {
		c.StateDir = filepath.Dir(c.ChangeLog)
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}

	// Ensure no trailing slash
	if len(c.ServiceURL) > 0 && c.ServiceURL[len(c.ServiceURL)-1] == '/' {
		c.ServiceURL = c.ServiceURL[:len(c.ServiceURL)-1]
	}

	if c.PartitionID != "" {
		if id, err := strconv.Atoi(c.PartitionID); err != nil || id < 0 {
			return fmt.Errorf("partition-id must be a non-negative integer, got %q", c.PartitionID)
		}
	}

	if c.MaxBatchBytes < 0 {
		return fmt.Errorf("max-batch-bytes must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	return nil
}

// Logger returns the zerolog logger used by the CLI before the library
// logger is wired up.
func Logger() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
