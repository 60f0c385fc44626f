// Package transform turns raw snapshots into validated tables and hands
// them to the sink.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"statcan/internal/config"
	"statcan/internal/logging"
	"statcan/internal/metrics"
	"statcan/internal/model"
	"statcan/internal/rawstore"
	"statcan/internal/sink"
	"statcan/internal/table"
	"statcan/internal/validate"
)

// ErrEmptyResult is returned when a snapshot yields no rows. Nothing is
// uploaded in that case.
var ErrEmptyResult = errors.New("transform produced no rows")

// Build flattens raw into a table for ds and validates it.
func Build(ds Dataset, raw []byte) (*table.Table, Skipped, error) {
	var (
		rows    [][]any
		skipped = Skipped{}
	)
	switch ds.Slot {
	case model.SlotCubes:
		cubes, err := model.ParseCubes(raw)
		if err != nil {
			return nil, nil, err
		}
		rows = FlattenCubes(cubes)
	case model.SlotIndicators:
		snap, err := model.ParseIndicators(raw)
		if err != nil {
			return nil, nil, err
		}
		if rows, skipped, err = FlattenIndicators(snap); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("no flattener for slot %q", ds.Slot)
	}
	if len(rows) == 0 {
		return nil, skipped, fmt.Errorf("%s: %w", ds.ID, ErrEmptyResult)
	}
	t, err := table.New(ds.Schema, rows)
	if err != nil {
		return nil, skipped, fmt.Errorf("%s: build table: %w", ds.ID, err)
	}
	if err := validate.Check(t, ds.Rules); err != nil {
		return nil, skipped, fmt.Errorf("%s: %w", ds.ID, err)
	}
	return t, skipped, nil
}

// Job loads one dataset's snapshot, builds its table, uploads it with
// overwrite and publishes catalogue metadata.
type Job struct {
	ds      Dataset
	store   rawstore.Store
	up      sink.Uploader
	pub     sink.Publisher
	run     config.Run
	log     *slog.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

func NewJob(ds Dataset, store rawstore.Store, up sink.Uploader, pub sink.Publisher, run config.Run, log *slog.Logger, m *metrics.Registry) *Job {
	return &Job{
		ds:      ds,
		store:   store,
		up:      up,
		pub:     pub,
		run:     run,
		log:     log.With("job", "transform_"+ds.Slot, "dataset", ds.ID),
		metrics: m,
		now:     time.Now,
	}
}

func (j *Job) Name() string { return "transform_" + j.ds.Slot }

func (j *Job) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { j.metrics.ObserveJob(j.Name(), start, err) }()

	raw, err := j.store.Load(ctx, j.ds.Slot)
	if err != nil {
		return fmt.Errorf("load %s: %w", j.ds.Slot, err)
	}
	t, skipped, err := Build(j.ds, raw)
	for kind, n := range skipped {
		j.metrics.ItemsSkipped.WithLabelValues(j.ds.ID, kind).Add(float64(n))
	}
	if total := skipped.Total(); total > 0 {
		j.log.Warn("skipped non-success items", "count", total, "by_kind", map[string]int(skipped))
	}
	if err != nil {
		return err
	}
	j.log.Info("transformed", "rows", logging.Count(t.Len()))
	j.metrics.RowsEmitted.WithLabelValues(j.ds.ID).Add(float64(t.Len()))

	digest, err := t.Digest()
	if err != nil {
		return fmt.Errorf("%s: %w", j.ds.ID, err)
	}
	rc, err := j.up.Upload(ctx, t, j.ds.ID, sink.Overwrite)
	if err != nil {
		return fmt.Errorf("upload %s: %w", j.ds.ID, err)
	}
	meta := sink.Metadata{
		Title:       j.ds.Title,
		Description: j.ds.Description,
		Columns:     sink.ColumnsOf(j.ds.Schema),
		RunID:       j.run.ID,
		Rows:        t.Len(),
		Digest:      digest,
		UploadID:    rc.UploadID,
		Location:    rc.Location,
		PublishedAt: j.now().UTC(),
	}
	if err := j.pub.Publish(ctx, j.ds.ID, meta); err != nil {
		return fmt.Errorf("publish %s: %w", j.ds.ID, err)
	}
	j.log.Info("published", "location", rc.Location, "digest", digest[:12])
	return nil
}
