package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/shiplabs/hubship/internal/cliconfig"
	"github.com/shiplabs/hubship/pkg/hubship"
)

const helpDescription = `
Ship change-data-capture events from an NDJSON change log to a partitioned hub.

Highlights:
  - Batches events per destination partition and commits offsets only after
    the batch was confirmed transmitted, so a restart never loses events.
  - Routes by explicit partition, sticky key, or fan-out across all partitions.
  - Configure via file, environment (HUBSHIP_*), or flags.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  hubship --change-log /var/log/cdc/changes.ndjson --auth-key <api-key>
  hubship --config $HOME/.hubship/config.toml --partition-key orders --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "hubship",
		Short:   "Ship change-data-capture events to a partitioned hub",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.hubship/config.toml),
			// then apply env and flag overrides.
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment variables override file config but lose to flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			// Log configuration (masking API key)
			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			log.Info().Interface("config", logCfg).Msg("configuration")

			libCfg := hubship.Config{
				ChangeLog:     cfg.ChangeLog,
				StateDir:      cfg.StateDir,
				ServiceURL:    cfg.ServiceURL,
				AuthKey:       cfg.AuthKey,
				PartitionID:   cfg.PartitionID,
				PartitionKey:  cfg.PartitionKey,
				MaxBatchBytes: cfg.MaxBatchBytes,
				PollInterval:  cfg.PollInterval,
				HTTPTimeout:   cfg.HTTPTimeout,
				Once:          cfg.Once,
			}

			h, err := hubship.New(libCfg, hubship.WithLogger(hubship.NewZerologLogger(log)))
			if err != nil {
				return fmt.Errorf("create hubship: %w", err)
			}

			// Setup signal handling for graceful shutdown
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			if err := h.Start(ctx); err != nil {
				return fmt.Errorf("start hubship: %w", err)
			}

			// Poll for completion (once mode or crash)
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := h.Status()
						if status == hubship.StateStopped || status == hubship.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case <-sigCh:
				log.Info().Msg("received signal, stopping...")
				if err := h.Stop(); err != nil {
					return fmt.Errorf("stop hubship: %w", err)
				}
			case <-doneCh:
				if h.Status() == hubship.StateCrashed {
					return fmt.Errorf("hubship crashed")
				}
			}
			return nil
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.hubship/config.toml)")
	root.Flags().StringVar(&cfg.ChangeLog, "change-log", cfg.ChangeLog, "path to the NDJSON change log to ship")

	root.Flags().StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, fmt.Sprintf("base service URL (defaults to %s; override only for internal testing)", cliconfig.DefaultServiceURL))
	if err := root.Flags().MarkHidden("service-url"); err != nil {
		log.Info().Err(err).Msg("failed to hide service-url flag")
	}
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")

	root.Flags().StringVar(&cfg.PartitionID, "partition-id", cfg.PartitionID, "route every event to this partition (takes precedence over partition-key)")
	root.Flags().StringVar(&cfg.PartitionKey, "partition-key", cfg.PartitionKey, "route every event under this sticky partition key")
	root.Flags().IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum serialized bytes per batch (0 = transport default)")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for status.json (defaults to the change log's directory)")
	if err := root.Flags().MarkHidden("state-dir"); err != nil {
		log.Info().Err(err).Msg("failed to hide state-dir flag")
	}
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval when idle")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "process available events and exit")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("hubship")
		os.Exit(1)
	}
}
