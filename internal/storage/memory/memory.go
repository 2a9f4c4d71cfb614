// Package memory is a process-local cost store with the same id and
// ordering guarantees as the SQLite repository.
package memory

import (
	"context"
	"sync"
	"time"

	"costmanager/internal/core"
)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	items    []core.CostEntry
	settings map[string]string
	now      func() time.Time
}

func New() *Store {
	return &Store{nextID: 1, settings: map[string]string{}, now: time.Now}
}

// NewWithClock is New with a fixed source of creation dates.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// Append stores the entry and assigns the next id.
func (s *Store) Append(_ context.Context, in core.CostInput) (core.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := core.NewCostEntry(in, s.now())
	if err != nil {
		return core.CostEntry{}, err
	}
	entry.ID = s.nextID
	s.nextID++
	s.items = append(s.items, entry)
	return entry, nil
}

// ListAll returns a copy of every entry in insertion order.
func (s *Store) ListAll(_ context.Context) ([]core.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CostEntry(nil), s.items...), nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) PutSettings(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.settings[k] = v
	}
	return nil
}
