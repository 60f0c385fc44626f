// Command genfixtures writes synthetic raw snapshots so the transform phase
// can run without network access:
//
//	genfixtures -dir ./data/raw -cubes 500 -points 24
//	statcan --transform-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"statcan/internal/config"
	"statcan/internal/fixtures"
	"statcan/internal/model"
	"statcan/internal/rawstore"
)

func main() {
	var (
		dir      string
		compress bool
		cubes    int
		points   int
		seed     int64
		vectors  string
		failed   string
	)
	flag.StringVar(&dir, "dir", "./data/raw", "raw store directory")
	flag.BoolVar(&compress, "compress", false, "write snappy-compressed snapshots")
	flag.IntVar(&cubes, "cubes", 500, "number of cubes to generate")
	flag.IntVar(&points, "points", 24, "observations per vector")
	flag.Int64Var(&seed, "seed", 1, "random seed")
	flag.StringVar(&vectors, "vectors", "", "comma-separated vector ids (default: the key indicator list)")
	flag.StringVar(&failed, "failed", "", "comma-separated vector ids reported as FAILED")
	flag.Parse()

	if err := generate(context.Background(), dir, compress, cubes, points, seed, vectors, failed); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(ctx context.Context, dir string, compress bool, cubes, points int, seed int64, vectors, failed string) error {
	vs := config.KeyVectors
	if vectors != "" {
		var err error
		if vs, err = config.ParseVectors(vectors); err != nil {
			return fmt.Errorf("vectors: %w", err)
		}
	}
	fv, err := config.ParseVectors(failed)
	if err != nil {
		return fmt.Errorf("failed: %w", err)
	}

	store, err := rawstore.Open(ctx, config.RawConfig{Backend: "fs", Dir: dir, Compress: compress})
	if err != nil {
		return err
	}

	c, err := fixtures.Cubes(cubes, seed)
	if err != nil {
		return fmt.Errorf("cubes: %w", err)
	}
	if err := store.Save(ctx, model.SlotCubes, c); err != nil {
		return fmt.Errorf("save %s: %w", model.SlotCubes, err)
	}
	ind, err := fixtures.Indicators(vs, points, fv, seed)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := store.Save(ctx, model.SlotIndicators, ind); err != nil {
		return fmt.Errorf("save %s: %w", model.SlotIndicators, err)
	}

	log.Printf("generated %d cubes and %d vectors x %d points in %s", cubes, len(vs), points, dir)
	return nil
}
