package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Bigsy/mcpherd/internal/cancel"
	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/lifecycle"
	"github.com/Bigsy/mcpherd/internal/notify"
)

// loadConfig loads the config from path, or the default location when path
// is empty.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// saveConfig writes the config back to path, or the default location when
// path is empty.
func saveConfig(cfg *config.Config, path string) error {
	if path != "" {
		return config.SaveTo(cfg, path)
	}
	return config.Save(cfg)
}

// runtime bundles one supervision session.
type runtime struct {
	bus      *events.Bus
	registry *cancel.Registry
	notifier *notify.Manager
	manager  *lifecycle.Manager
	pids     *lifecycle.PIDTracker
}

// newRuntime builds a supervision session over the configured servers,
// cleaning up orphans from any previous session. logWriter receives slog
// output; pass io.Discard to silence it.
func newRuntime(cfg *config.Config, logWriter io.Writer, level slog.Level) (*runtime, error) {
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: level}))

	bus := events.NewBus()
	registry := cancel.NewRegistry(bus, logger)
	notifier := notify.NewManager(bus, logger)

	pids, err := lifecycle.NewPIDTracker(logger)
	if err != nil {
		return nil, fmt.Errorf("pid tracker: %w", err)
	}
	if killed := pids.CleanupOrphans(); killed > 0 {
		logger.Warn("cleaned up orphan servers from previous session", "count", killed)
	}

	manager := lifecycle.NewManager(
		lifecycle.OptionsFromConfig(cfg.Runtime),
		bus, registry, notifier,
		lifecycle.WithLogger(logger),
		lifecycle.WithPIDTracker(pids),
	)

	for _, srv := range cfg.ServerList() {
		if err := manager.Register(srv); err != nil {
			logger.Warn("skipping server", "server", srv.Name, "err", err)
		}
	}

	return &runtime{
		bus:      bus,
		registry: registry,
		notifier: notifier,
		manager:  manager,
		pids:     pids,
	}, nil
}

// Close stops all servers and shuts the session down.
func (r *runtime) Close() {
	_ = r.manager.Close()
	r.bus.Close()
}
