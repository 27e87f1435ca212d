package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlQueries holds the dialect-specific statements used by sqlBackend.
type sqlQueries struct {
	schema []string
	load   string
	insert string
	update string
	delete string
}

// sqlBackend implements Store[S] on top of database/sql. The SQLite, MySQL and
// PostgreSQL stores embed it and differ only in their statements.
//
// Optimistic concurrency:
//   - version 1 is written with an insert that ignores duplicates; zero rows
//     affected means another writer created the run first
//   - later versions are written with UPDATE ... WHERE version = previous;
//     zero rows affected means the stored version moved on
type sqlBackend[S any] struct {
	db     *sql.DB
	q      sqlQueries
	mu     sync.RWMutex
	closed bool
}

func newSQLBackend[S any](db *sql.DB, q sqlQueries) *sqlBackend[S] {
	return &sqlBackend[S]{db: db, q: q}
}

// createTables runs the schema statements.
func (b *sqlBackend[S]) createTables(ctx context.Context) error {
	for _, stmt := range b.q.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (b *sqlBackend[S]) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Load implements Store.
func (b *sqlBackend[S]) Load(ctx context.Context, runID string) (Checkpoint[S], error) {
	if err := b.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}

	var (
		cp        Checkpoint[S]
		status    string
		stateJSON []byte
		updatedAt int64
	)
	err := b.db.QueryRowContext(ctx, b.q.load, runID).Scan(
		&cp.Graph, &cp.NodeID, &status, &cp.Approved, &cp.Step, &cp.Version, &stateJSON, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	cp.RunID = runID
	cp.Status = Status(status)
	cp.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return cp, nil
}

// Save implements Store.
func (b *sqlBackend[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if cp.RunID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	now := time.Now().UTC().UnixMilli()

	var res sql.Result
	if cp.Version == 1 {
		res, err = b.db.ExecContext(ctx, b.q.insert,
			cp.RunID, cp.Graph, cp.NodeID, string(cp.Status), cp.Approved, cp.Step, cp.Version, string(stateJSON), now,
		)
	} else {
		res, err = b.db.ExecContext(ctx, b.q.update,
			cp.Graph, cp.NodeID, string(cp.Status), cp.Approved, cp.Step, cp.Version, string(stateJSON), now,
			cp.RunID, cp.Version-1,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Delete implements Store.
func (b *sqlBackend[S]) Delete(ctx context.Context, runID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, b.q.delete, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database connection.
//
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (b *sqlBackend[S]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Ping verifies the database connection is alive.
func (b *sqlBackend[S]) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.PingContext(ctx)
}
