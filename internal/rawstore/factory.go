package rawstore

import (
	"context"
	"fmt"

	"statcan/internal/config"
)

// Open creates the backend selected by cfg. Callers should Close the result
// when it implements io.Closer.
func Open(ctx context.Context, cfg config.RawConfig) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFilesystemStore(cfg.Dir, cfg.Compress), nil
	case "memory":
		return NewInMemoryStore(), nil
	case "pebble":
		return NewPebbleStore(cfg.Dir)
	case "badger":
		return NewBadgerStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
	case "gcs":
		return openGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix)
	default:
		return nil, fmt.Errorf("unsupported raw backend: %s", cfg.Backend)
	}
}
