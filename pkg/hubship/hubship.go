package hubship

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/shiplabs/hubship/internal/adapters/fs"
	"github.com/shiplabs/hubship/internal/adapters/hub"
	logAdapter "github.com/shiplabs/hubship/internal/adapters/log"
	"github.com/shiplabs/hubship/internal/app"
	"github.com/shiplabs/hubship/internal/domain"
	"github.com/shiplabs/hubship/internal/ports"
)

// State is the externally visible lifecycle state of a Hubship instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Hubship is a change-event shipping agent that can be embedded in other
// applications. Use New() to create an instance, then Start() to begin
// shipping.
type Hubship struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	connector *app.Connector
	reader    ports.ChangeReader
	producer  ports.PartitionProducer
	stateRepo ports.StateRepository
	logger    ports.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Hubship instance with the given configuration.
// The instance is created in StateStopped; call Start() to begin shipping.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Hubship, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	var logger ports.Logger
	if o.logger != nil {
		logger = o.logger
	} else {
		logger = logAdapter.NewNoopLogger()
	}

	lifecycle := app.NewLifecycle(logger)

	reader := fs.NewChangeLogReader(cfg.ChangeLog, cfg.PollInterval, logger)
	stateRepo := fs.NewStateFileRepository(cfg.StateDir)

	producer := o.producer
	if producer == nil {
		producer = hub.NewProducer(hub.Config{
			ServiceURL: cfg.ServiceURL,
			AuthKey:    cfg.AuthKey,
		}, o.httpClient, logger)
	}

	committer := o.committer
	if committer == nil {
		state, err := stateRepo.Load(context.Background())
		if err != nil {
			logger.Warn("failed to load committed state, starting fresh", ports.Err(err))
		}
		committer = fs.NewOffsetCommitter(stateRepo, state)
	}

	connectorCfg := app.ConnectorConfig{
		PartitionID:   cfg.PartitionID,
		PartitionKey:  cfg.PartitionKey,
		MaxBatchBytes: cfg.MaxBatchBytes,
		PollInterval:  cfg.PollInterval,
		Once:          cfg.Once,
	}
	connector := app.NewConnector(connectorCfg, reader, producer, committer, stateRepo, logger)

	return &Hubship{
		config:    cfg,
		opts:      o,
		lifecycle: lifecycle,
		connector: connector,
		reader:    reader,
		producer:  producer,
		stateRepo: stateRepo,
		logger:    logger,
	}, nil
}

// Start begins shipping change events in the background.
// Returns immediately after starting the connector goroutine.
// Returns an error if already running.
// The provided context is used for the lifetime of the shipping operation.
func (h *Hubship) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}

	if err := h.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.ctx = runCtx
	h.cancel = cancel
	h.lifecycle.SetCancel(cancel)

	h.lifecycle.AddWorker()
	go func() {
		defer h.lifecycle.WorkerDone()

		if err := h.lifecycle.TransitionTo(app.StateRunning, "connector starting"); err != nil {
			h.logger.Error("failed to transition to running", ports.Err(err))
			return
		}

		err := h.connector.Run(runCtx)

		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("connector error", ports.Err(err))
			_ = h.lifecycle.TransitionTo(app.StateCrashed, err.Error())
			return
		}

		// Clean return: once-mode finished or the context was canceled.
		// Stop() drives the transitions in the cancellation case.
		if h.lifecycle.State() == app.StateRunning && err == nil {
			_ = h.lifecycle.TransitionTo(app.StateStopping, "connector finished")
			_ = h.lifecycle.TransitionTo(app.StateStopped, "connector finished")
		}
	}()

	return nil
}

// Stop gracefully shuts down the connector.
// Pending batches are flushed and the committed offset persisted before the
// run loop exits. Waits up to 30 seconds before forcing shutdown.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (h *Hubship) Stop() error {
	h.mu.Lock()

	if !h.lifecycle.CanStop() {
		h.mu.Unlock()
		return domain.ErrNotRunning
	}

	if err := h.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		h.mu.Unlock()
		return err
	}

	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Unlock()

	err := h.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	if err != nil {
		_ = h.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = h.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}

	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (h *Hubship) Status() State {
	return convertState(h.lifecycle.State())
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
