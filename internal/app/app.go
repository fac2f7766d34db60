// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/codec"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/engine/native"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/engine/postgis"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/engine/spatialite"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/metrics"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/projection"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/source"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/adapters/watcher"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/application"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/config"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Engine        output.GeometryEngine
	Codec         codec.Codec
	Toolkit       *application.Toolkit
	HealthService *application.HealthService
	Metrics       *metrics.Collector

	metrics output.MetricsCollector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Codec:   codec.New(),
		metrics: &output.NoOpMetrics{},
	}

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		app.metrics = app.Metrics
	}

	engine, err := initEngine(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}
	app.Engine = engine

	app.Toolkit = application.NewToolkit(engine, app.metrics, logger, application.ToolkitConfig{
		WorkingSRID:    cfg.Geometry.WorkingSRID,
		SpikeMode:      application.SpikeMode(cfg.Spikes.Mode),
		SpikeMaxPasses: cfg.Spikes.MaxPasses,
		SpikeThreshold: cfg.Spikes.Threshold,
	})

	app.HealthService = application.NewHealthService(engine)

	logger.Debug("application initialized", "engine", engine.Name(), "working_srid", cfg.Geometry.WorkingSRID)
	return app, nil
}

// WithTimeout bounds ctx by the configured engine timeout.
func (a *App) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Config.Engine.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.Config.Engine.Timeout)
}

// NewPipeline builds a pipeline from a comma-separated step chain.
func (a *App) NewPipeline(chain string, targetSRID int) (*application.Pipeline, error) {
	steps, err := application.ParseSteps(chain)
	if err != nil {
		return nil, err
	}
	return application.NewPipeline(a.Toolkit, steps, application.PipelineOptions{
		TargetSRID:     targetSRID,
		SpikeThreshold: a.Config.Spikes.Threshold,
	}, a.Logger), nil
}

// NewBatch creates a batch processor reading from the configured source and
// writing results to outDir.
func (a *App) NewBatch(ctx context.Context, pipeline *application.Pipeline, outDir string, format output.Format) (*application.BatchProcessor, error) {
	src, err := initSource(ctx, a.Config.Source)
	if err != nil {
		return nil, fmt.Errorf("initializing source: %w", err)
	}
	return application.NewBatchProcessor(src, a.Codec, pipeline, a.metrics, a.Logger, application.BatchConfig{
		OutputDir: outDir,
		InputSRID: a.Config.Geometry.InputSRID,
		Format:    format,
	}), nil
}

// Watch reprocesses geometry files as they change until ctx is done. Local
// sources are watched with filesystem notifications, remote sources are
// polled every watch.poll_interval and on SIGHUP.
func (a *App) Watch(ctx context.Context, batch *application.BatchProcessor) error {
	if a.Config.Source.IsRemote() {
		poll := application.NewPollService(batch, a.Config.Watch.PollInterval, a.Logger)
		a.Logger.Info("polling remote source", "type", a.Config.Source.Type, "interval", poll.Interval())
		poll.Start(ctx)

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		a.pollOnSignal(ctx, poll, hup)
		signal.Stop(hup)

		poll.Stop()
		return nil
	}

	dir, err := filepath.Abs(a.Config.Source.LocalPath)
	if err != nil {
		return fmt.Errorf("resolving watch directory: %w", err)
	}

	// Files already present are cleaned once before watching.
	if _, err := batch.RunChanged(ctx); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{
		Paths:    []string{dir},
		Debounce: a.Config.Watch.Debounce,
	}, a.fileEventHandler(batch, dir), a.Logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return w.Stop()
}

// pollOnSignal triggers an immediate poll for every value received on sig
// until ctx is done.
func (a *App) pollOnSignal(ctx context.Context, poll *application.PollService, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			res, err := poll.TriggerPoll(ctx)
			switch {
			case errors.Is(err, application.ErrRateLimited):
				a.Logger.Warn("poll trigger ignored", "error", err)
			case err != nil:
				a.Logger.Error("triggered poll failed", "error", err)
			default:
				a.Logger.Info("triggered poll finished",
					"processed", res.Batch.Processed,
					"failed", res.Batch.Failed,
					"skipped", res.Batch.Skipped,
				)
			}
		}
	}
}

// fileEventHandler cleans created or modified files under dir.
func (a *App) fileEventHandler(batch *application.BatchProcessor, dir string) watcher.Handler {
	return func(ctx context.Context, event watcher.Event) error {
		a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())

		if event.Operation == watcher.OpDelete {
			return nil
		}

		key, err := filepath.Rel(dir, event.Path)
		if err != nil {
			return fmt.Errorf("resolving key: %w", err)
		}

		fr := batch.ProcessKey(ctx, filepath.ToSlash(key))
		if fr.Error != "" {
			return errors.New(fr.Error)
		}
		a.Logger.Info("geometry cleaned", "key", fr.Key, "output", fr.Output)
		return nil
	}
}

// Shutdown releases the engine and writes the metrics textfile when
// configured.
func (a *App) Shutdown(_ context.Context) error {
	var errs []error

	if a.Metrics != nil && a.Config.Metrics.Textfile != "" {
		if err := a.Metrics.WriteTextfile(a.Config.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}

	if err := a.Engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing engine: %w", err))
	}

	return errors.Join(errs...)
}

// initEngine initializes the configured geometry engine.
func initEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (output.GeometryEngine, error) {
	switch cfg.Engine.Type {
	case config.EngineNative:
		overrides, err := cfg.ProjectionOverrides()
		if err != nil {
			return nil, err
		}
		reprojector := projection.NewReprojector(domain.NewProjectionRegistry(overrides))
		return native.New(reprojector, logger), nil

	case config.EngineSpatiaLite:
		return spatialite.New(ctx, spatialite.Config{
			LibraryPath: cfg.Engine.SpatiaLite.LibraryPath,
		}, logger)

	case config.EnginePostGIS:
		return postgis.New(ctx, postgis.Config{
			DSN:      cfg.Engine.PostGIS.DSN,
			MaxConns: cfg.Engine.PostGIS.MaxConns,
		}, logger)

	default:
		return nil, &domain.ConfigError{Field: "engine.type", Message: fmt.Sprintf("unknown engine %q", cfg.Engine.Type)}
	}
}

// initSource initializes the appropriate geometry source.
func initSource(ctx context.Context, cfg config.SourceConfig) (output.GeometrySource, error) {
	switch cfg.Type {
	case "local":
		return source.NewLocal(cfg.LocalPath), nil

	case "s3":
		return source.NewS3(ctx, source.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return source.NewAzure(source.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return source.NewHTTP(source.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
