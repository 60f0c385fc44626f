package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsPublisher is the part of *nats.Conn the catalogue needs.
type natsPublisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSCatalog announces catalogue entries on <subject>.<dataset>.
type NATSCatalog struct {
	conn    natsPublisher
	subject string
	now     func() time.Time
	close   func()
}

// NewNATSCatalog connects to url.
func NewNATSCatalog(url, subject string) (*NATSCatalog, error) {
	nc, err := nats.Connect(url, nats.Name("statcan-catalog"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSCatalog{conn: nc, subject: subject, now: time.Now, close: nc.Close}, nil
}

// NewNATSCatalogWith is only for tests to inject a fake connection.
func NewNATSCatalogWith(conn natsPublisher, subject string) *NATSCatalog {
	return &NATSCatalog{conn: conn, subject: subject, now: time.Now}
}

func (n *NATSCatalog) Publish(ctx context.Context, datasetID string, meta Metadata) error {
	if err := CheckDatasetID(datasetID); err != nil {
		return err
	}
	if meta.PublishedAt.IsZero() {
		meta.PublishedAt = n.now().UTC()
	}
	b, err := json.Marshal(Entry{DatasetID: datasetID, Metadata: meta})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := n.conn.Publish(n.subject+"."+datasetID, b); err != nil {
		return fmt.Errorf("nats publish %s: %w", datasetID, err)
	}
	// Publish only buffers; flushing surfaces connection errors now.
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (n *NATSCatalog) Close() error {
	if n.close != nil {
		n.close()
	}
	return nil
}
