package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for:
//   - Testing and development
//   - Single-process deployments where checkpoints may be lost on restart
//
// MemStore is thread-safe. Every read and write of a run happens under one
// mutex, which makes operations on the same run ID linearizable.
//
// Stored states are deep-copied through JSON so callers never share a
// reference with the store (or with another run).
type MemStore[S any] struct {
	mu          sync.RWMutex
	checkpoints map[string][]byte // runID -> JSON encoded Checkpoint[S]
	versions    map[string]int64  // runID -> stored version
	now         func() time.Time
}

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemStore[inquiry.State]()
//	engine, err := graph.New(def, st, emitter)
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		checkpoints: make(map[string][]byte),
		versions:    make(map[string]int64),
		now:         time.Now,
	}
}

// Load implements Store.
func (m *MemStore[S]) Load(_ context.Context, runID string) (Checkpoint[S], error) {
	m.mu.RLock()
	data, ok := m.checkpoints[runID]
	m.mu.RUnlock()

	if !ok {
		return Checkpoint[S]{}, ErrNotFound
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Save implements Store.
func (m *MemStore[S]) Save(_ context.Context, cp Checkpoint[S]) error {
	if cp.RunID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	cp.UpdatedAt = m.now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.Version != m.versions[cp.RunID]+1 {
		return ErrConflict
	}

	m.checkpoints[cp.RunID] = data
	m.versions[cp.RunID] = cp.Version
	return nil
}

// Delete implements Store.
func (m *MemStore[S]) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, runID)
	delete(m.versions, runID)
	return nil
}

// Len returns the number of stored checkpoints.
func (m *MemStore[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkpoints)
}
