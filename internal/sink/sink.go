// Package sink uploads finished tables and publishes their catalogue
// metadata. Uploads and catalogue entries are last-writer-wins per dataset.
package sink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"statcan/internal/table"
)

// Mode controls what happens to rows already stored for a dataset.
type Mode string

const (
	Overwrite Mode = "overwrite"
	Append    Mode = "append"
)

func (m Mode) valid() bool { return m == Overwrite || m == Append }

// Receipt describes a completed upload.
type Receipt struct {
	UploadID string
	// Location is where the rows landed: a path, a table or a topic.
	Location string
	Rows     int
}

// Uploader stores the rows of a table under a dataset id.
type Uploader interface {
	Upload(ctx context.Context, t *table.Table, datasetID string, mode Mode) (Receipt, error)
}

// ColumnMeta documents one published column.
type ColumnMeta struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Metadata is the catalogue entry of a dataset.
type Metadata struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Columns     []ColumnMeta `json:"columns"`
	RunID       string       `json:"run_id"`
	Rows        int          `json:"rows"`
	Digest      string       `json:"digest"`
	UploadID    string       `json:"upload_id"`
	Location    string       `json:"location,omitempty"`
	PublishedAt time.Time    `json:"published_at"`
}

// Entry is what catalogues store: the metadata keyed by dataset id.
type Entry struct {
	DatasetID string `json:"dataset_id"`
	Metadata
}

// ColumnsOf derives column metadata from a table schema.
func ColumnsOf(s table.Schema) []ColumnMeta {
	out := make([]ColumnMeta, len(s))
	for i, c := range s {
		out[i] = ColumnMeta{Name: c.Name, Type: c.Type.String(), Description: c.Description}
	}
	return out
}

// Publisher records dataset metadata in a catalogue.
type Publisher interface {
	Publish(ctx context.Context, datasetID string, meta Metadata) error
}

// MultiPublisher publishes to several catalogues in order and stops at the
// first failure.
type MultiPublisher struct {
	pubs []Publisher
}

func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{pubs: pubs}
}

func (m *MultiPublisher) Publish(ctx context.Context, datasetID string, meta Metadata) error {
	for _, p := range m.pubs {
		if err := p.Publish(ctx, datasetID, meta); err != nil {
			return err
		}
	}
	return nil
}

var datasetPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CheckDatasetID rejects ids that are unsafe as file, table or topic names.
func CheckDatasetID(id string) error {
	if !datasetPattern.MatchString(id) {
		return fmt.Errorf("invalid dataset id %q", id)
	}
	return nil
}

func checkUpload(datasetID string, mode Mode) error {
	if err := CheckDatasetID(datasetID); err != nil {
		return err
	}
	if !mode.valid() {
		return fmt.Errorf("unknown upload mode %q", mode)
	}
	return nil
}

func newUploadID() string { return uuid.New().String() }
