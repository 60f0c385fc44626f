// Package pipeline wires the jobs together and runs them in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Job is one step of a run.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Options selects the phases to run. Neither flag means both phases.
type Options struct {
	IngestOnly    bool
	TransformOnly bool
}

// ErrConflictingPhases is returned when both phase flags are set.
var ErrConflictingPhases = errors.New("ingest-only and transform-only cannot be combined")

func (o Options) check() error {
	if o.IngestOnly && o.TransformOnly {
		return ErrConflictingPhases
	}
	return nil
}

// Runner executes the ingest jobs and then the transform jobs, one at a
// time. The first failure stops the run.
type Runner struct {
	Ingest    []Job
	Transform []Job
	// Check validates the environment before any job starts.
	Check func() error
	Log   *slog.Logger
}

func (r *Runner) Run(ctx context.Context, opts Options) error {
	if err := opts.check(); err != nil {
		return err
	}
	if r.Check != nil {
		if err := r.Check(); err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
	}
	if !opts.TransformOnly {
		r.Log.Info("phase: ingest")
		if err := r.runAll(ctx, r.Ingest); err != nil {
			return err
		}
	}
	if !opts.IngestOnly {
		r.Log.Info("phase: transform")
		if err := r.runAll(ctx, r.Transform); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runAll(ctx context.Context, jobs []Job) error {
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			r.Log.Error("job failed", "job", j.Name(), "err", err)
			return fmt.Errorf("%s: %w", j.Name(), err)
		}
		r.Log.Info("job done", "job", j.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return nil
}
