package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"statcan/internal/config"
	"statcan/internal/statcan"
)

// fetchCmd exposes single WDS calls for debugging. Output is the raw
// response, indented.
func fetchCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Call one WDS endpoint and print the raw JSON response",
	}
	call := func(fn func(ctx context.Context, c *statcan.Client, args []string) (json.RawMessage, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			raw, err := fn(cmd.Context(), statcan.NewFromConfig(cfg.API), args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		}
	}

	var latestN int
	data := &cobra.Command{
		Use:   "series-data VECTOR...",
		Short: "Latest N observations for vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE: call(func(ctx context.Context, c *statcan.Client, args []string) (json.RawMessage, error) {
			ids, err := parseIDs(args)
			if err != nil {
				return nil, err
			}
			return c.GetSeriesData(ctx, ids, latestN)
		}),
	}
	data.Flags().IntVar(&latestN, "latest-n", 12, "observations per vector")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "cubes",
			Short: "Lightweight list of every cube",
			Args:  cobra.NoArgs,
			RunE: call(func(ctx context.Context, c *statcan.Client, _ []string) (json.RawMessage, error) {
				return c.ListAllCubes(ctx)
			}),
		},
		&cobra.Command{
			Use:   "cube-metadata PRODUCT_ID...",
			Short: "Full metadata for cubes",
			Args:  cobra.MinimumNArgs(1),
			RunE: call(func(ctx context.Context, c *statcan.Client, args []string) (json.RawMessage, error) {
				ids, err := parseIDs(args)
				if err != nil {
					return nil, err
				}
				return c.GetCubeMetadata(ctx, ids)
			}),
		},
		&cobra.Command{
			Use:   "changed [YYYY-MM-DD]",
			Short: "Cubes released on a day (default today, UTC)",
			Args:  cobra.MaximumNArgs(1),
			RunE: call(func(ctx context.Context, c *statcan.Client, args []string) (json.RawMessage, error) {
				day := time.Now().UTC()
				if len(args) == 1 {
					var err error
					if day, err = time.Parse(time.DateOnly, args[0]); err != nil {
						return nil, fmt.Errorf("invalid date %q: %w", args[0], err)
					}
				}
				return c.GetChangedCubeList(ctx, day)
			}),
		},
		&cobra.Command{
			Use:   "series-info VECTOR...",
			Short: "Series metadata for vectors",
			Args:  cobra.MinimumNArgs(1),
			RunE: call(func(ctx context.Context, c *statcan.Client, args []string) (json.RawMessage, error) {
				ids, err := parseIDs(args)
				if err != nil {
					return nil, err
				}
				return c.GetSeriesInfo(ctx, ids)
			}),
		},
		data,
	)
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, a := range args {
		// Accept "v41881485" as well as "41881485,41881486".
		more, err := config.ParseVectors(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, more...)
	}
	return ids, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
