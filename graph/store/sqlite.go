package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores checkpoints in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-instance deployments that must survive a restart
//
// The connection pool is limited to one connection, so writes are serialized
// by SQLite itself. WAL mode keeps readers from blocking the writer.
//
// Schema:
//   - run_checkpoints: one row per run, keyed by run_id
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	*sqlBackend[S]
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./csflow.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore[sop.State]("./csflow.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	st := &SQLiteStore[S]{
		sqlBackend: newSQLBackend[S](db, sqliteQueries),
		path:       path,
	}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}

var sqliteQueries = sqlQueries{
	schema: []string{`
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			run_id TEXT PRIMARY KEY,
			graph TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			approved INTEGER NOT NULL DEFAULT 0,
			step INTEGER NOT NULL,
			version INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_run_checkpoints_status ON run_checkpoints(status)",
	},
	load: `
		SELECT graph, node_id, status, approved, step, version, state, updated_at
		FROM run_checkpoints
		WHERE run_id = ?`,
	insert: `
		INSERT INTO run_checkpoints (run_id, graph, node_id, status, approved, step, version, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING`,
	update: `
		UPDATE run_checkpoints
		SET graph = ?, node_id = ?, status = ?, approved = ?, step = ?, version = ?, state = ?, updated_at = ?
		WHERE run_id = ? AND version = ?`,
	delete: "DELETE FROM run_checkpoints WHERE run_id = ?",
}
