package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"statcan/internal/table"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	// Placeholder returns the i-th (1-based) bind parameter.
	Placeholder func(i int) string
	Quote       func(ident string) string
	Types       map[table.Type]string

	catalogDDL    string
	catalogUpsert string
	// ddlCommits is set when DDL commits the open transaction implicitly.
	ddlCommits bool
}

func doubleQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func question(int) string { return "?" }

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		Placeholder: question,
		Quote:       doubleQuote,
		Types:       map[table.Type]string{table.String: "TEXT", table.Int64: "INTEGER", table.Float64: "REAL"},
		catalogDDL: `CREATE TABLE IF NOT EXISTS dataset_catalog (
	dataset_id TEXT PRIMARY KEY,
	title TEXT,
	description TEXT,
	entry TEXT,
	published_at TEXT
)`,
		catalogUpsert: `INSERT INTO dataset_catalog (dataset_id, title, description, entry, published_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (dataset_id) DO UPDATE SET title = excluded.title, description = excluded.description,
entry = excluded.entry, published_at = excluded.published_at`,
	}

	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "postgres",
		Placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
		Quote:       doubleQuote,
		Types:       map[table.Type]string{table.String: "TEXT", table.Int64: "BIGINT", table.Float64: "DOUBLE PRECISION"},
		catalogDDL: `CREATE TABLE IF NOT EXISTS dataset_catalog (
	dataset_id TEXT PRIMARY KEY,
	title TEXT,
	description TEXT,
	entry TEXT,
	published_at TIMESTAMPTZ
)`,
		catalogUpsert: `INSERT INTO dataset_catalog (dataset_id, title, description, entry, published_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (dataset_id) DO UPDATE SET title = excluded.title, description = excluded.description,
entry = excluded.entry, published_at = excluded.published_at`,
	}

	MySQL = Dialect{
		Name:        "mysql",
		Driver:      "mysql",
		Placeholder: question,
		Quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		Types:       map[table.Type]string{table.String: "TEXT", table.Int64: "BIGINT", table.Float64: "DOUBLE"},
		catalogDDL: "CREATE TABLE IF NOT EXISTS dataset_catalog (\n" +
			"\tdataset_id VARCHAR(128) PRIMARY KEY,\n" +
			"\ttitle TEXT,\n" +
			"\tdescription TEXT,\n" +
			"\tentry MEDIUMTEXT,\n" +
			"\tpublished_at DATETIME(6)\n" +
			")",
		catalogUpsert: `INSERT INTO dataset_catalog (dataset_id, title, description, entry, published_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE title = VALUES(title), description = VALUES(description),
entry = VALUES(entry), published_at = VALUES(published_at)`,
		ddlCommits: true,
	}
)

// DialectFor maps a sink backend name to its dialect.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "sqlite":
		return SQLite, nil
	case "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect: %s", name)
	}
}

// SQLSink stores each dataset as a table of the same name and keeps the
// catalogue in dataset_catalog. It is both an Uploader and a Publisher.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLSink(db *sql.DB, d Dialect) *SQLSink {
	return &SQLSink{db: db, dialect: d, now: time.Now}
}

// CreateTableSQL renders the DDL for a dataset table.
func (s *SQLSink) CreateTableSQL(datasetID string, schema table.Schema, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(s.dialect.Quote(datasetID))
	b.WriteString(" (")
	for i, c := range schema {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.dialect.Quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(s.dialect.Types[c.Type])
	}
	b.WriteString(")")
	return b.String()
}

// InsertSQL renders the parameterized INSERT for a dataset table.
func (s *SQLSink) InsertSQL(datasetID string, schema table.Schema) string {
	cols := make([]string, len(schema))
	params := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = s.dialect.Quote(c.Name)
		params[i] = s.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(datasetID), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// Upload replaces (or extends) the dataset table. Readers see either the
// old rows or the new ones. Where DDL is transactional everything runs in one
// transaction. On MySQL an overwrite loads a staging table and swaps it in
// with a single RENAME TABLE, so a failed load leaves the live table as it was.
func (s *SQLSink) Upload(ctx context.Context, t *table.Table, datasetID string, mode Mode) (Receipt, error) {
	if err := checkUpload(datasetID, mode); err != nil {
		return Receipt{}, err
	}
	var err error
	if mode == Overwrite && s.dialect.ddlCommits {
		err = s.swapIn(ctx, t, datasetID)
	} else {
		err = s.load(ctx, t, datasetID, mode == Overwrite)
	}
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{UploadID: newUploadID(), Location: s.dialect.Name + ":" + datasetID, Rows: t.Len()}, nil
}

// load writes t into table name in one transaction. With replace the table
// is dropped and recreated first; otherwise it is created when missing.
func (s *SQLSink) load(ctx context.Context, t *table.Table, name string, replace bool) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if replace {
		if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.dialect.Quote(name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, s.CreateTableSQL(name, t.Schema(), !replace)); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	stmt, err := tx.PrepareContext(ctx, s.InsertSQL(name, t.Schema()))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", name, err)
	}
	defer stmt.Close()
	for i := 0; i < t.Len(); i++ {
		if _, err = stmt.ExecContext(ctx, t.Row(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", name, i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// swapIn loads t into <id>__staging and then exchanges it with the live
// table. RENAME TABLE renames both pairs atomically.
func (s *SQLSink) swapIn(ctx context.Context, t *table.Table, datasetID string) error {
	q := s.dialect.Quote
	staging, old := datasetID+"__staging", datasetID+"__old"
	if err := s.load(ctx, t, staging, true); err != nil {
		_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+q(staging))
		return err
	}
	for _, stmt := range []string{
		s.CreateTableSQL(datasetID, t.Schema(), true),
		"DROP TABLE IF EXISTS " + q(old),
		fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s", q(datasetID), q(old), q(staging), q(datasetID)),
		"DROP TABLE " + q(old),
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swap in %s: %w", datasetID, err)
		}
	}
	return nil
}

// Publish upserts the catalogue row of datasetID.
func (s *SQLSink) Publish(ctx context.Context, datasetID string, meta Metadata) error {
	if err := CheckDatasetID(datasetID); err != nil {
		return err
	}
	if meta.PublishedAt.IsZero() {
		meta.PublishedAt = s.now().UTC()
	}
	entry, err := json.Marshal(Entry{DatasetID: datasetID, Metadata: meta})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.catalogDDL); err != nil {
		return fmt.Errorf("create dataset_catalog: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.dialect.catalogUpsert,
		datasetID, meta.Title, meta.Description, string(entry), meta.PublishedAt)
	if err != nil {
		return fmt.Errorf("upsert catalog %s: %w", datasetID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLSink) Close() error { return s.db.Close() }
