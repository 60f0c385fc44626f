// Package rawstore keeps unmodified API responses in named slots between the
// ingest and transform phases. Every Save overwrites the slot.
package rawstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ErrNotFound is returned by Load when nothing was saved under a slot.
var ErrNotFound = errors.New("raw snapshot not found")

// Store abstracts the raw snapshot backend.
type Store interface {
	Save(ctx context.Context, slot string, data []byte) error
	Load(ctx context.Context, slot string) ([]byte, error)
}

var slotPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// CheckSlot rejects slot names that could escape a directory or key prefix.
func CheckSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return fmt.Errorf("invalid slot name %q", slot)
	}
	return nil
}

// SaveJSON marshals v and saves it under slot.
func SaveJSON(ctx context.Context, s Store, slot string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", slot, err)
	}
	return s.Save(ctx, slot, b)
}

// InMemoryStore is a thread-safe map store. Snapshots live only as long as
// the process, which is enough when both phases run in one invocation.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

func (s *InMemoryStore) Save(_ context.Context, slot string, data []byte) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[slot] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, slot string) ([]byte, error) {
	if err := CheckSlot(slot); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	return append([]byte(nil), b...), nil
}
