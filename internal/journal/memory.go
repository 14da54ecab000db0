package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory, thread-safe Journal.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates a Memory journal holding only the genesis entry.
func NewMemory() *Memory {
	return &Memory{entries: []*Entry{genesis()}}
}

// Append implements Journal.
func (m *Memory) Append(_ context.Context, rec Record) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := chain(m.entries[len(m.entries)-1], rec, time.Now())
	if err != nil {
		return nil, err
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

// Get implements Journal.
func (m *Memory) Get(_ context.Context, index int) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.entries) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	e := *m.entries[index]
	return &e, nil
}

// Len implements Journal.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Verify implements Journal.
func (m *Memory) Verify(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var prev *Entry
	for _, curr := range m.entries {
		if err := check(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Journal.
func (m *Memory) Root(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[len(m.entries)-1].Hash, nil
}
