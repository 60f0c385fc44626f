package rawstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

const keyPrefix = "raw/"

// PebbleStore implements Store using PebbleDB.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		// Snapshots are few and large; a small memtable is plenty.
		MemTableSize: 64 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) Save(_ context.Context, slot string, data []byte) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	if err := p.db.Set([]byte(keyPrefix+slot), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", slot, err)
	}
	return nil
}

func (p *PebbleStore) Load(_ context.Context, slot string) ([]byte, error) {
	if err := CheckSlot(slot); err != nil {
		return nil, err
	}
	v, closer, err := p.db.Get([]byte(keyPrefix + slot))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
		}
		return nil, fmt.Errorf("pebble get %s: %w", slot, err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// Slots lists saved slot names in key order.
func (p *PebbleStore) Slots() ([]string, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("raw0"), // '0' sorts right after '/'
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	var out []string
	for it.First(); it.Valid(); it.Next() {
		out = append(out, string(it.Key()[len(keyPrefix):]))
	}
	return out, it.Error()
}
