package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/mux"
)

// RunFunc performs one complete pipeline run.
type RunFunc func(ctx context.Context) error

// Scheduler repeats a run at a fixed interval and serves /metrics and
// /healthz while it waits. A tick that fires while a run is still going is
// skipped.
type Scheduler struct {
	every   time.Duration
	run     RunFunc
	log     *slog.Logger
	metrics http.Handler

	mu      sync.Mutex
	lastAt  time.Time
	lastErr error
	runs    int
}

func NewScheduler(every time.Duration, run RunFunc, metrics http.Handler, log *slog.Logger) *Scheduler {
	return &Scheduler{every: every, run: run, metrics: metrics, log: log.With("component", "scheduler")}
}

// Router returns the HTTP routes served in schedule mode.
func (s *Scheduler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

type health struct {
	Status    string     `json:"status"`
	Runs      int        `json:"runs"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Scheduler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	h := health{Status: "ok", Runs: s.runs}
	if !s.lastAt.IsZero() {
		at := s.lastAt
		h.LastRunAt = &at
	}
	if s.lastErr != nil {
		h.Status = "degraded"
		h.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

func (s *Scheduler) tick(ctx context.Context) {
	s.log.Info("scheduled run starting")
	err := s.run(ctx)
	if err != nil {
		s.log.Error("scheduled run failed", "err", err)
	} else {
		s.log.Info("scheduled run finished")
	}
	s.mu.Lock()
	s.lastAt, s.lastErr = time.Now().UTC(), err
	s.runs++
	s.mu.Unlock()
}

// Start runs immediately and then every interval until ctx is done. When
// listen is not empty the router is served on it.
func (s *Scheduler) Start(ctx context.Context, listen string) error {
	if s.every <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", s.every)
	}
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	if _, err := sched.Every(s.every).StartImmediately().Do(s.tick, ctx); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	var srv *http.Server
	errc := make(chan error, 1)
	if listen != "" {
		srv = &http.Server{Addr: listen, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
		s.log.Info("serving metrics", "addr", listen)
	}

	s.log.Info("scheduler started", "every", s.every)
	sched.StartAsync()
	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
		err = fmt.Errorf("metrics server: %w", err)
	}
	sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	s.log.Info("scheduler stopped")
	return err
}
