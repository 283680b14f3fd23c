// Package app wires the engine together: it owns the logger, loads the
// pipeline configuration, builds the coordinator with its executor, store
// and sinks, and drives either a one-shot run or the long-lived server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/mergegate/internal/artifact"
	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/execlocal"
	"github.com/vk/mergegate/internal/notify"
	"github.com/vk/mergegate/internal/run"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	pipeline *config.Pipeline
	coord    *run.Coordinator
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger. A failure to
// load configuration is a fatal startup error.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipeline, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline configuration: %w", err))
	}
	if appConfig.Workers > 0 {
		pipeline.Workers = appConfig.Workers
	}

	var store artifact.Store
	if appConfig.ArtifactDir != "" {
		store = artifact.NewDirStore(appConfig.ArtifactDir)
	}

	sinks := []run.Sink{notify.SlogSink{}}
	if appConfig.NotifyURL != "" {
		sinks = append(sinks, notify.NewSocketIOSink(appConfig.NotifyURL, appConfig.NotifyNamespace, false))
	}

	exec := execlocal.New(appConfig.WorkDir)
	coord := run.NewCoordinator(pipeline, exec, store, sinks...)
	logger.Debug("Coordinator constructed.", "jobs", len(pipeline.Jobs), "gates", len(pipeline.Gates))

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		pipeline: pipeline,
		coord:    coord,
	}
}

// Coordinator returns the application's run coordinator. This is primarily
// for testing.
func (a *App) Coordinator() *run.Coordinator {
	return a.coord
}

// Run executes the configured mode: a single run for an event file, or the
// HTTP server loop.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.EventPath != "" {
		return a.runOnce(ctx)
	}
	return a.serve(ctx)
}
