// Package validate checks a finished table against declared rules before
// it is published.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"statcan/internal/table"
)

// Rules declares what a table must satisfy.
type Rules struct {
	// Columns maps column name to its expected type.
	Columns map[string]table.Type
	// NotNull columns may not hold nulls.
	NotNull []string
	// Unique columns may not repeat a non-null value.
	Unique []string
	// MinRows is the minimum row count.
	MinRows int
	// MinDistinct maps column name to the minimum number of distinct
	// non-null values.
	MinDistinct map[string]int
}

// Error lists every violated rule.
type Error struct {
	Violations []error
}

func (e *Error) Error() string {
	return "validation failed: " + strings.ReplaceAll(errors.Join(e.Violations...).Error(), "\n", "; ")
}

func (e *Error) Unwrap() []error { return e.Violations }

// Check validates t against r and returns *Error when any rule fails.
func Check(t *table.Table, r Rules) error {
	var errs []error
	schema := t.Schema()

	for _, name := range sortedKeys(r.Columns) {
		want := r.Columns[name]
		idx := schema.Index(name)
		switch {
		case idx < 0:
			errs = append(errs, fmt.Errorf("column %q: missing", name))
		case schema[idx].Type != want:
			errs = append(errs, fmt.Errorf("column %q: type %s, want %s", name, schema[idx].Type, want))
		}
	}

	if t.Len() < r.MinRows {
		errs = append(errs, fmt.Errorf("row count %d below minimum %d", t.Len(), r.MinRows))
	}

	for _, name := range r.NotNull {
		vals, err := t.Column(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("not null %q: %w", name, err))
			continue
		}
		nulls := 0
		for _, v := range vals {
			if v == nil {
				nulls++
			}
		}
		if nulls > 0 {
			errs = append(errs, fmt.Errorf("column %q: %d null values", name, nulls))
		}
	}

	for _, name := range r.Unique {
		vals, err := t.Column(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("unique %q: %w", name, err))
			continue
		}
		seen := make(map[any]struct{}, len(vals))
		var dups []string
		for _, v := range vals {
			if v == nil {
				continue
			}
			if _, ok := seen[v]; ok {
				if len(dups) < 5 {
					dups = append(dups, fmt.Sprint(v))
				}
				continue
			}
			seen[v] = struct{}{}
		}
		if len(dups) > 0 {
			errs = append(errs, fmt.Errorf("column %q: duplicate values %s", name, strings.Join(dups, ", ")))
		}
	}

	for _, name := range sortedKeys(r.MinDistinct) {
		vals, err := t.Column(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("distinct %q: %w", name, err))
			continue
		}
		distinct := make(map[any]struct{})
		for _, v := range vals {
			if v != nil {
				distinct[v] = struct{}{}
			}
		}
		if want := r.MinDistinct[name]; len(distinct) < want {
			errs = append(errs, fmt.Errorf("column %q: %d distinct values, want at least %d", name, len(distinct), want))
		}
	}

	if len(errs) > 0 {
		return &Error{Violations: errs}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
