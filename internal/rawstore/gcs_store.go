//go:build gcp

package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore keeps each slot as <prefix><slot>.json in a bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS-backed store using application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) object(slot string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + slot + ".json")
}

func (s *GCSStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	w := s.object(slot).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", slot, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", slot, err)
	}
	return nil
}

func (s *GCSStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := CheckSlot(slot); err != nil {
		return nil, err
	}
	r, err := s.object(slot).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
		}
		return nil, fmt.Errorf("gcs get %s: %w", slot, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Close() error { return s.client.Close() }

func openGCS(ctx context.Context, bucket, prefix string) (Store, error) {
	return NewGCSStore(ctx, bucket, prefix)
}
