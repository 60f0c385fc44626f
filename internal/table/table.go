// Package table is a small row-oriented table with a fixed, typed schema.
// Cells are nil, string, int64 or float64.
package table

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gowebpki/jcs"
)

// Type is a column type.
type Type int

const (
	String Type = iota
	Int64
	Float64
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Column describes one column.
type Column struct {
	Name        string
	Type        Type
	Description string
}

// Schema is an ordered list of columns.
type Schema []Column

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Descriptions maps column name to description.
func (s Schema) Descriptions() map[string]string {
	out := make(map[string]string, len(s))
	for _, c := range s {
		out[c.Name] = c.Description
	}
	return out
}

// Table holds rows conforming to a schema.
type Table struct {
	schema Schema
	rows   [][]any
}

// New builds a table from rows laid out in schema order. Pointer and int
// cells are normalized; a cell that does not fit its column is an error.
func New(schema Schema, rows [][]any) (*Table, error) {
	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("row %d: has %d cells, schema has %d columns", r, len(row), len(schema))
		}
		norm := make([]any, len(row))
		for c, v := range row {
			cell, err := coerce(v, schema[c].Type)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, schema[c].Name, err)
			}
			norm[c] = cell
		}
		out[r] = norm
	}
	return &Table{schema: schema, rows: out}, nil
}

func coerce(v any, t Type) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *string:
		if x == nil {
			return nil, nil
		}
		v = *x
	case *int64:
		if x == nil {
			return nil, nil
		}
		v = *x
	case *float64:
		if x == nil {
			return nil, nil
		}
		v = *x
	case int:
		v = int64(x)
	}
	switch t {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Int64:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case Float64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, t)
}

// Schema returns the table schema.
func (t *Table) Schema() Schema { return t.schema }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns row i. The slice must not be modified.
func (t *Table) Row(i int) []any { return t.rows[i] }

// Column returns every value of the named column.
func (t *Table) Column(name string) ([]any, error) {
	idx := t.schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("no column %q", name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// EncodeRow renders row i as a JSON object with keys in schema order.
func (t *Table) EncodeRow(i int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for c, col := range t.schema {
		if c > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.rows[i][c])
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: %w", i, col.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteJSONLines writes one JSON object per row.
func (t *Table) WriteJSONLines(w io.Writer) error {
	for i := range t.rows {
		b, err := t.EncodeRow(i)
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

type columnDoc struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type tableDoc struct {
	Columns []columnDoc `json:"columns"`
	Rows    [][]any     `json:"rows"`
}

// Digest returns the SHA-256 of the RFC 8785 canonical JSON form of the
// schema and rows. Equal tables have equal digests.
func (t *Table) Digest() (string, error) {
	doc := tableDoc{Columns: make([]columnDoc, len(t.schema)), Rows: t.rows}
	for i, c := range t.schema {
		doc.Columns[i] = columnDoc{Name: c.Name, Type: c.Type.String()}
	}
	if doc.Rows == nil {
		doc.Rows = [][]any{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal table: %w", err)
	}
	canon, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("canonicalize table: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
