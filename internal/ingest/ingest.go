// Package ingest fetches raw WDS responses and saves them, unmodified, to
// the raw store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"statcan/internal/logging"
	"statcan/internal/metrics"
	"statcan/internal/model"
	"statcan/internal/rawstore"
)

// API is the part of the WDS client the ingest jobs use.
type API interface {
	ListAllCubes(ctx context.Context) (json.RawMessage, error)
	GetSeriesInfo(ctx context.Context, vectorIDs []int64) (json.RawMessage, error)
	GetSeriesData(ctx context.Context, vectorIDs []int64, latestN int) (json.RawMessage, error)
}

// CubesJob saves the full cube catalogue under the cubes slot.
type CubesJob struct {
	api     API
	store   rawstore.Store
	log     *slog.Logger
	metrics *metrics.Registry
}

func NewCubesJob(api API, store rawstore.Store, log *slog.Logger, m *metrics.Registry) *CubesJob {
	return &CubesJob{api: api, store: store, log: log.With("job", "ingest_cubes"), metrics: m}
}

func (j *CubesJob) Name() string { return "ingest_cubes" }

func (j *CubesJob) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { j.metrics.ObserveJob(j.Name(), start, err) }()

	j.log.Info("fetching cube catalogue")
	raw, err := j.api.ListAllCubes(ctx)
	if err != nil {
		return fmt.Errorf("list cubes: %w", err)
	}
	n, err := countItems(raw)
	if err != nil {
		return fmt.Errorf("list cubes: %w", err)
	}
	if err := j.store.Save(ctx, model.SlotCubes, raw); err != nil {
		return fmt.Errorf("save %s: %w", model.SlotCubes, err)
	}
	j.metrics.ItemsFetched.WithLabelValues(j.Name()).Add(float64(n))
	j.log.Info("saved cubes", "count", logging.Count(n))
	return nil
}

// IndicatorsJob saves series metadata and the latest observations of a fixed
// vector list under the economic_indicators slot. The two batch responses
// are stored side by side and paired only at transform time.
type IndicatorsJob struct {
	api     API
	store   rawstore.Store
	vectors []int64
	latestN int
	log     *slog.Logger
	metrics *metrics.Registry
}

func NewIndicatorsJob(api API, store rawstore.Store, vectors []int64, latestN int, log *slog.Logger, m *metrics.Registry) *IndicatorsJob {
	return &IndicatorsJob{
		api:     api,
		store:   store,
		vectors: append([]int64(nil), vectors...),
		latestN: latestN,
		log:     log.With("job", "ingest_economic_indicators"),
		metrics: m,
	}
}

func (j *IndicatorsJob) Name() string { return "ingest_economic_indicators" }

func (j *IndicatorsJob) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { j.metrics.ObserveJob(j.Name(), start, err) }()

	j.log.Info("fetching series metadata", "vectors", len(j.vectors))
	info, err := j.api.GetSeriesInfo(ctx, j.vectors)
	if err != nil {
		return fmt.Errorf("series info: %w", err)
	}
	nInfo, err := countItems(info)
	if err != nil {
		return fmt.Errorf("series info: %w", err)
	}
	j.log.Info("got series metadata", "count", nInfo)

	j.log.Info("fetching series data", "latest_n", j.latestN)
	data, err := j.api.GetSeriesData(ctx, j.vectors, j.latestN)
	if err != nil {
		return fmt.Errorf("series data: %w", err)
	}
	nData, err := countItems(data)
	if err != nil {
		return fmt.Errorf("series data: %w", err)
	}
	j.log.Info("got data responses", "count", nData)

	if err := rawstore.SaveJSON(ctx, j.store, model.SlotIndicators, model.IndicatorsEnvelope{
		SeriesInfo: info,
		Data:       data,
	}); err != nil {
		return fmt.Errorf("save %s: %w", model.SlotIndicators, err)
	}
	j.metrics.ItemsFetched.WithLabelValues(j.Name()).Add(float64(nInfo + nData))
	return nil
}

// countItems returns the length of a JSON array response.
func countItems(raw json.RawMessage) (int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("expected a JSON array: %w", err)
	}
	return len(items), nil
}
