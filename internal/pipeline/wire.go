package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"statcan/internal/config"
	"statcan/internal/ingest"
	"statcan/internal/metrics"
	"statcan/internal/rawstore"
	"statcan/internal/sink"
	"statcan/internal/statcan"
	"statcan/internal/transform"
)

// App holds everything one run needs.
type App struct {
	Config  *config.Config
	Run     config.Run
	Metrics *metrics.Registry
	Client  *statcan.Client
	Raw     rawstore.Store
	Sinks   *sink.Set
	Runner  *Runner

	closers []io.Closer
}

// Build validates cfg and opens the backends the selected phases need.
// The sink is only opened when the transform phase runs.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *metrics.Registry, opts Options) (_ *App, err error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	app := &App{Config: cfg, Run: cfg.Run(), Metrics: reg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	raw, err := rawstore.Open(ctx, cfg.Raw)
	if err != nil {
		return nil, fmt.Errorf("open raw store: %w", err)
	}
	app.Raw = raw
	if c, ok := raw.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	runner := &Runner{Check: cfg.Validate, Log: log.With("component", "pipeline")}
	if !opts.TransformOnly {
		app.Client = statcan.NewFromConfig(cfg.API, statcan.WithLogger(log), statcan.WithMetrics(reg))
		runner.Ingest = []Job{
			ingest.NewCubesJob(app.Client, raw, log, reg),
			ingest.NewIndicatorsJob(app.Client, raw, cfg.Indicators.Vectors, cfg.Indicators.LatestN, log, reg),
		}
	}
	if !opts.IngestOnly {
		set, err := sink.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open sink: %w", err)
		}
		app.Sinks = set
		app.closers = append(app.closers, set)
		for _, ds := range transform.Datasets {
			runner.Transform = append(runner.Transform,
				transform.NewJob(ds, raw, set.Uploader, set.Publisher, app.Run, log, reg))
		}
	}
	app.Runner = runner
	return app, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
