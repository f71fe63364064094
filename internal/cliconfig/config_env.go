package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (HUBSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("change-log", os.Getenv("HUBSHIP_CHANGE_LOG"), &cfg.ChangeLog)
	s.setString("state-dir", os.Getenv("HUBSHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("service-url", os.Getenv("HUBSHIP_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", os.Getenv("HUBSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setString("partition-id", os.Getenv("HUBSHIP_PARTITION_ID"), &cfg.PartitionID)
	s.setString("partition-key", os.Getenv("HUBSHIP_PARTITION_KEY"), &cfg.PartitionKey)

	if err := s.setIntFromString("max-batch-bytes", os.Getenv("HUBSHIP_MAX_BATCH_BYTES"), &cfg.MaxBatchBytes); err != nil {
		return err
	}

	if err := s.setDuration("poll", os.Getenv("HUBSHIP_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("HUBSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("HUBSHIP_ONCE"), &cfg.Once)

	return nil
}
