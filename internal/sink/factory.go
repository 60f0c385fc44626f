package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"statcan/internal/config"
)

// Set is the uploader and catalogue chosen by configuration.
type Set struct {
	Uploader  Uploader
	Publisher Publisher
	closers   []io.Closer
}

// Close releases every connection the set opened.
func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the sink and catalogue backends named in cfg.
func Open(ctx context.Context, cfg *config.Config) (_ *Set, err error) {
	set := &Set{}
	defer func() {
		if err != nil {
			_ = set.Close()
		}
	}()

	var sqlSink *SQLSink
	switch cfg.Sink.Backend {
	case "file":
		u, err := NewFileUploader(cfg.Sink.Dir)
		if err != nil {
			return nil, err
		}
		set.Uploader = u
	case "sqlite", "postgres", "mysql":
		d, err := DialectFor(cfg.Sink.Backend)
		if err != nil {
			return nil, err
		}
		dsn := cfg.Sink.DSN
		if dsn == "" && d.Name == "sqlite" {
			if err := os.MkdirAll(cfg.Sink.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir: %w", err)
			}
			dsn = filepath.Join(cfg.Sink.Dir, "statcan.db")
		}
		db, err := sql.Open(d.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d.Name, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", d.Name, err)
		}
		sqlSink = NewSQLSink(db, d)
		set.closers = append(set.closers, sqlSink)
		set.Uploader = sqlSink
	case "kafka":
		u, err := NewKafkaUploader(ctx, cfg.Sink.KafkaBootstrap, cfg.Sink.TopicPrefix, "statcan-"+cfg.Run().ID)
		if err != nil {
			return nil, err
		}
		set.closers = append(set.closers, u)
		set.Uploader = u
	default:
		return nil, fmt.Errorf("unsupported sink backend: %s", cfg.Sink.Backend)
	}

	var pubs []Publisher
	for _, b := range cfg.Catalog.Backends {
		switch b {
		case "file":
			pubs = append(pubs, NewFileCatalog(cfg.Catalog.Dir))
		case "kafka":
			kc := NewKafkaCatalog(cfg.CatalogKafkaBootstrap(), cfg.Catalog.KafkaTopic)
			set.closers = append(set.closers, kc)
			pubs = append(pubs, kc)
		case "nats":
			nc, err := NewNATSCatalog(cfg.Catalog.NATSURL, cfg.Catalog.NATSSubject)
			if err != nil {
				return nil, err
			}
			set.closers = append(set.closers, nc)
			pubs = append(pubs, nc)
		case "sql":
			if sqlSink == nil {
				return nil, fmt.Errorf("sql catalog needs a sql sink, have %s", cfg.Sink.Backend)
			}
			pubs = append(pubs, sqlSink)
		default:
			return nil, fmt.Errorf("unsupported catalog backend: %s", b)
		}
	}
	if len(pubs) == 1 {
		set.Publisher = pubs[0]
	} else {
		set.Publisher = NewMultiPublisher(pubs...)
	}
	return set, nil
}
