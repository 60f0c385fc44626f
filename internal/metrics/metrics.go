package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Registry struct {
	reg *prometheus.Registry

	// API client
	APICalls     *prometheus.CounterVec // endpoint, code
	ThrottleWait prometheus.Histogram

	// Jobs
	ItemsFetched *prometheus.CounterVec // task
	RowsEmitted  *prometheus.CounterVec // dataset
	ItemsSkipped *prometheus.CounterVec // dataset, kind
	JobDuration  *prometheus.HistogramVec
	JobFailures  *prometheus.CounterVec
	LastSuccess  *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	apiCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statcan_api_calls_total",
		Help: "WDS API calls by endpoint and HTTP status code.",
	}, []string{"endpoint", "code"})
	throttle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "statcan_api_throttle_wait_seconds",
		Help:    "Time spent waiting for the rate limiter.",
		Buckets: []float64{0, .01, .025, .05, .1, .25, .5, 1},
	})
	fetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statcan_ingest_items_total",
		Help: "Items returned by the API per ingest job.",
	}, []string{"task"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statcan_transform_rows_total",
		Help: "Rows emitted per dataset.",
	}, []string{"dataset"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statcan_transform_skipped_items_total",
		Help: "Upstream items dropped during flattening.",
	}, []string{"dataset", "kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statcan_job_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "statcan_job_failures_total"}, []string{"task"})
	last := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statcan_job_last_success_timestamp_seconds",
	}, []string{"task"})

	r.MustRegister(apiCalls, throttle, fetched, rows, skipped, duration, failures, last)
	return &Registry{
		reg:          r,
		APICalls:     apiCalls,
		ThrottleWait: throttle,
		ItemsFetched: fetched,
		RowsEmitted:  rows,
		ItemsSkipped: skipped,
		JobDuration:  duration,
		JobFailures:  failures,
		LastSuccess:  last,
	}
}

// ObserveJob records the outcome of one job run that started at start.
func (r *Registry) ObserveJob(job string, start time.Time, err error) {
	r.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		r.JobFailures.WithLabelValues(job).Inc()
		return
	}
	r.LastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry for tests and pushes.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Push sends every metric to a Pushgateway under job "statcan", grouped by
// run id. The gateway rejects metrics that carry their own job or run_id
// label.
func (r *Registry) Push(ctx context.Context, url, runID string) error {
	err := push.New(url, "statcan").
		Gatherer(r.reg).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
