package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Memory is a Store backed by a map. It keeps copies, so callers cannot
// mutate stored entries without calling Save.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) FindOrCreate(ctx context.Context, name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.entries[name]; ok {
		return e.Clone(), nil
	}
	return &Entry{Name: name}, nil
}

func (m *Memory) Save(ctx context.Context, e *Entry) error {
	if e == nil || e.Name == "" {
		return errors.New("entry name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := e.Clone()
	if prev, ok := m.entries[e.Name]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.entries[e.Name] = cp
	e.CreatedAt = cp.CreatedAt
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Names returns the stored names, sorted.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
