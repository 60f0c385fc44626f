package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"statcan/internal/table"
)

// FileUploader writes each dataset as <dir>/<dataset>.jsonl, one object per
// row with keys in schema order.
type FileUploader struct {
	dir string
}

func NewFileUploader(dir string) (*FileUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileUploader{dir: dir}, nil
}

// Path returns the file holding datasetID.
func (u *FileUploader) Path(datasetID string) string {
	return filepath.Join(u.dir, datasetID+".jsonl")
}

func (u *FileUploader) Upload(_ context.Context, t *table.Table, datasetID string, mode Mode) (Receipt, error) {
	if err := checkUpload(datasetID, mode); err != nil {
		return Receipt{}, err
	}
	path := u.Path(datasetID)
	rc := Receipt{UploadID: newUploadID(), Location: path, Rows: t.Len()}
	if mode == Append {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Receipt{}, fmt.Errorf("open: %w", err)
		}
		w := bufio.NewWriter(f)
		if err := t.WriteJSONLines(w); err != nil {
			f.Close()
			return Receipt{}, fmt.Errorf("write %s: %w", datasetID, err)
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return Receipt{}, fmt.Errorf("flush %s: %w", datasetID, err)
		}
		if err := f.Close(); err != nil {
			return Receipt{}, fmt.Errorf("close %s: %w", datasetID, err)
		}
		return rc, nil
	}

	err := writeAtomic(path, func(w io.Writer) error { return t.WriteJSONLines(w) })
	if err != nil {
		return Receipt{}, fmt.Errorf("write %s: %w", datasetID, err)
	}
	return rc, nil
}

// writeAtomic writes path through a temp file in the same directory and
// renames it into place, so path holds either the old or the new content.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	w := bufio.NewWriter(tmp)
	if err = write(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// FileCatalog keeps one indented JSON document per dataset at
// <dir>/<dataset>.meta.json.
type FileCatalog struct {
	baseDir string
	now     func() time.Time
}

func NewFileCatalog(baseDir string) *FileCatalog {
	return &FileCatalog{baseDir: baseDir, now: time.Now}
}

func (f *FileCatalog) path(datasetID string) string {
	return filepath.Join(f.baseDir, datasetID+".meta.json")
}

func (f *FileCatalog) Publish(_ context.Context, datasetID string, meta Metadata) error {
	if err := CheckDatasetID(datasetID); err != nil {
		return err
	}
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if meta.PublishedAt.IsZero() {
		meta.PublishedAt = f.now().UTC()
	}
	err := writeAtomic(f.path(datasetID), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(Entry{DatasetID: datasetID, Metadata: meta}); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", datasetID, err)
	}
	return nil
}

// Read returns the last entry published for datasetID.
func (f *FileCatalog) Read(datasetID string) (Entry, error) {
	if err := CheckDatasetID(datasetID); err != nil {
		return Entry{}, err
	}
	data, err := os.ReadFile(f.path(datasetID))
	if err != nil {
		return Entry{}, fmt.Errorf("read catalog entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal catalog entry: %w", err)
	}
	return e, nil
}
