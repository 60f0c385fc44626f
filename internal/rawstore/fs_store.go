package rawstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// FilesystemStore writes one file per slot under baseDir: <slot>.json, or
// <slot>.json.sz when snappy compression is on.
type FilesystemStore struct {
	baseDir  string
	compress bool
}

func NewFilesystemStore(baseDir string, compress bool) *FilesystemStore {
	return &FilesystemStore{baseDir: baseDir, compress: compress}
}

func (f *FilesystemStore) path(slot string) string {
	name := slot + ".json"
	if f.compress {
		name += ".sz"
	}
	return filepath.Join(f.baseDir, name)
}

// Save writes to a temp file and renames it over the slot so readers never
// see a partial snapshot.
func (f *FilesystemStore) Save(_ context.Context, slot string, data []byte) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if f.compress {
		data = snappy.Encode(nil, data)
	}
	tmp, err := os.CreateTemp(f.baseDir, "."+slot+"-*")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(slot)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemStore) Load(_ context.Context, slot string) ([]byte, error) {
	if err := CheckSlot(slot); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(slot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if f.compress {
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", slot, err)
		}
		return out, nil
	}
	return data, nil
}
