package cmd

import (
	"fmt"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/event"
	"github.com/conclave-ai/conclave/internal/guard"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/orchestrator"
	"github.com/conclave-ai/conclave/internal/persona"
	"github.com/conclave-ai/conclave/internal/responder"
	"github.com/conclave-ai/conclave/internal/store"
)

// app bundles the assembled runtime stack for a command invocation.
type app struct {
	cfg          *config.Config
	store        store.Store
	bus          *event.Bus
	logger       *logging.Logger
	orchestrator *orchestrator.Orchestrator

	// roster holds the participants from a configured roster file, nil
	// when the built-in roster applies.
	roster []council.Participant
}

// buildApp assembles the full stack from configuration. Every command
// that touches sessions goes through here so they all agree on store
// location, guard limits, and roster.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.ResolveLogDir(), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	personas := persona.NewRegistry()
	var roster []council.Participant
	if path := cfg.ResolveRosterFile(); path != "" {
		roster, err = personas.LoadRoster(path)
		if err != nil {
			st.Close()
			logger.Close()
			return nil, fmt.Errorf("failed to load roster %s: %w", path, err)
		}
	}

	bus := event.NewBus()
	g := guard.New(cfg.GuardConfig())
	resp := responder.NewOpenAIResponder(cfg.ResponderConfig())

	orch := orchestrator.New(st, bus, g, resp, personas, logger, orchestrator.Config{
		Settings: cfg.Settings(),
		Vote:     cfg.VoteConfig(),
	})

	return &app{
		cfg:          cfg,
		store:        st,
		bus:          bus,
		logger:       logger,
		orchestrator: orch,
		roster:       roster,
	}, nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (store.Store, error) {
	path := cfg.ResolveStorePath()
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database %s: %w", path, err)
		}
		return st, nil
	default:
		st, err := store.NewFileStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session directory %s: %w", path, err)
		}
		return st, nil
	}
}

// Close releases the stack in reverse assembly order.
func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
