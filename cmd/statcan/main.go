// Command statcan pulls Statistics Canada WDS data, turns it into tabular
// datasets and uploads them to the configured sink.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"statcan/internal/config"
	"statcan/internal/logging"
	"statcan/internal/metrics"
	"statcan/internal/pipeline"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
}

func (g *globals) load() (*config.Config, error) {
	return config.Load(g.configPath, os.Getenv)
}

func rootCmd() *cobra.Command {
	var (
		g    globals
		opts pipeline.Options
	)
	cmd := &cobra.Command{
		Use:   "statcan",
		Short: "Statistics Canada WDS connector",
		Long: `statcan fetches the cube catalogue and a fixed list of economic indicator
series from the Statistics Canada Web Data Service, flattens them into two
datasets and uploads them, publishing catalogue metadata alongside.

Without flags both the ingest and transform phases run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			reg := metrics.NewRegistry()
			err = runOnce(ctx, cfg, g.logLevel, reg, opts, cmd.ErrOrStderr())
			pushMetrics(cfg, reg, cmd.ErrOrStderr())
			return err
		},
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.IngestOnly, "ingest-only", false, "only fetch raw data")
	cmd.Flags().BoolVar(&opts.TransformOnly, "transform-only", false, "only transform previously fetched data")
	cmd.MarkFlagsMutuallyExclusive("ingest-only", "transform-only")

	cmd.AddCommand(scheduleCmd(&g), fetchCmd(&g), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statcan %s\n", version)
		},
	})
	return cmd
}

// runOnce builds the pipeline for cfg and runs it to completion.
func runOnce(ctx context.Context, cfg *config.Config, level string, reg *metrics.Registry, opts pipeline.Options, logOut io.Writer) error {
	log, err := logging.New(logOut, level, cfg.Run())
	if err != nil {
		return err
	}
	start := time.Now()
	log.Info("run starting", "ingest_only", opts.IngestOnly, "transform_only", opts.TransformOnly)
	app, err := pipeline.Build(ctx, cfg, log, reg, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Runner.Run(ctx, opts); err != nil {
		log.Error("run failed", "err", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return err
	}
	log.Info("run finished", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func pushMetrics(cfg *config.Config, reg *metrics.Registry, logOut io.Writer) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := reg.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Run().ID); err != nil {
		slog.New(slog.NewTextHandler(logOut, nil)).Warn("metrics push failed", "err", err)
	}
}

func scheduleCmd(g *globals) *cobra.Command {
	var (
		every  time.Duration
		listen string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline now and then at a fixed interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("every") {
				cfg.Schedule.Every = every
			}
			if cmd.Flags().Changed("listen") {
				cfg.Metrics.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid environment: %w", err)
			}
			log, err := logging.New(cmd.ErrOrStderr(), g.logLevel, cfg.Run())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			reg := metrics.NewRegistry()
			base := cfg.Run().ID
			run := func(ctx context.Context) error {
				tick := *cfg
				tick.RunID = base + "-" + time.Now().UTC().Format("20060102T150405Z")
				err := runOnce(ctx, &tick, g.logLevel, reg, pipeline.Options{}, cmd.ErrOrStderr())
				pushMetrics(&tick, reg, cmd.ErrOrStderr())
				return err
			}
			return pipeline.NewScheduler(cfg.Schedule.Every, run, reg.Handler(), log).Start(ctx, cfg.Metrics.Listen)
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "interval between runs (overrides schedule.every)")
	cmd.Flags().StringVar(&listen, "listen", "", "address for /metrics and /healthz; empty disables (overrides metrics.listen)")
	return cmd
}
