package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/agents"
	"github.com/deepnoodle-ai/crew/pebblestore"
	"github.com/deepnoodle-ai/crew/postgres"
	"github.com/deepnoodle-ai/crew/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds every component the commands work with.
type app struct {
	cfg            *crew.Config
	logger         *slog.Logger
	store          crew.CheckpointStore
	closer         io.Closer
	registry       *crew.ThreadRegistry
	orchestrator   *crew.Orchestrator
	attachments    *crew.AttachmentStore
	memory         *agents.FileMemory
	activityLogger crew.ActivityLogger
	metrics        *crew.Metrics
	registerer     *prometheus.Registry
	session        *crew.Session
}

func newLogger(cfg *crew.Config) *slog.Logger {
	level := crew.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" {
		return crew.NewJSONLogger(level)
	}
	return crew.NewLogger(level)
}

func openStore(ctx context.Context, cfg *crew.Config) (crew.CheckpointStore, io.Closer, error) {
	switch cfg.Store {
	case crew.StoreMemory:
		return crew.NewMemoryCheckpointStore(cfg.RetainCheckpoints), nil, nil
	case crew.StoreFile:
		store, err := crew.NewFileCheckpointStore(cfg.CheckpointDir(), cfg.RetainCheckpoints)
		return store, nil, err
	case crew.StoreSQLite:
		store, err := sqlite.Open(filepath.Join(cfg.CheckpointDir(), "checkpoints.db"), cfg.RetainCheckpoints)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case crew.StorePebble:
		store, err := pebblestore.Open(filepath.Join(cfg.CheckpointDir(), "pebble"), cfg.RetainCheckpoints)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case crew.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.RetainCheckpoints)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := crew.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logger := newLogger(cfg)

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s checkpoint store: %w", cfg.Store, err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, closer: closer}

	a.registerer = prometheus.NewRegistry()
	a.metrics = crew.NewMetrics(a.registerer)

	a.registry, err = crew.NewThreadRegistry(crew.RegistryOptions{
		Path:            cfg.RegistryPath(),
		Store:           store,
		CompactInterval: cfg.CompactInterval,
		Metrics:         a.metrics,
		Logger:          logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.memory, err = agents.NewFileMemory(filepath.Join(cfg.DataDir, "episodes.json"), store)
	if err != nil {
		a.Close()
		return nil, err
	}

	team, err := agents.Build(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.activityLogger = crew.NewNullActivityLogger()
	if cfg.ActivityLog {
		a.activityLogger = crew.NewFileActivityLogger(cfg.ActivityDir())
	}
	a.orchestrator, err = crew.NewOrchestrator(crew.OrchestratorOptions{
		Store:               store,
		Agents:              team.Agents,
		Supervisor:          team.Supervisor,
		Classifier:          team.Classifier,
		EpisodicMemory:      a.memory,
		MaxEpisodicExamples: cfg.MaxEpisodicExamples,
		RecursionLimit:      cfg.RecursionLimit,
		Retry:               cfg.Retry,
		Callbacks:           a.metrics,
		ActivityLogger:      a.activityLogger,
		Logger:              logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.attachments, err = crew.NewAttachmentStore(cfg.AttachmentDir(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.session, err = crew.NewSession(ctx, crew.SessionOptions{
		Registry:         a.registry,
		Orchestrator:     a.orchestrator,
		Attachments:      a.attachments,
		EpisodicMemory:   a.memory,
		EpisodicLearning: cfg.EpisodicLearning,
		Metrics:          a.metrics,
		Logger:           logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if threadID != "" {
		if _, err := a.session.Activate(ctx, threadID); err != nil {
			a.Close()
			return nil, fmt.Errorf("thread %s: %w", threadID, err)
		}
	}
	return a, nil
}

func (a *app) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// deleteThread removes a thread along with its activity history.
func (a *app) deleteThread(ctx context.Context, id string) (*crew.ThreadView, error) {
	view, err := a.session.DeleteThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if history, ok := a.activityLogger.(*crew.FileActivityLogger); ok {
		if err := history.DeleteHistory(ctx, id); err != nil {
			a.logger.Error("failed to delete activity history", "thread_id", id, "error", err)
		}
	}
	return view, nil
}
