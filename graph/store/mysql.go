package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It stores checkpoints in a relational database shared by every replica of
// the service. Designed for:
//   - Production deployments with more than one API instance
//   - Runs that wait on human approval for hours or days
//
// Schema:
//   - run_checkpoints: one row per run, keyed by run_id
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	*sqlBackend[S]
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Pass the DSN through
//	CSFLOW_STORE_DSN instead.
//
// The store automatically:
//   - Creates required tables if they don't exist
//   - Configures connection pooling
//
// Example:
//
//	st, err := store.NewMySQLStore[sop.State]("user:pass@tcp(localhost:3306)/csflow")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore[S]{sqlBackend: newSQLBackend[S](db, mysqlQueries)}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

var mysqlQueries = sqlQueries{
	schema: []string{`
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			graph VARCHAR(128) NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			step INT NOT NULL,
			version BIGINT NOT NULL,
			state JSON NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	load: `
		SELECT graph, node_id, status, approved, step, version, state, updated_at
		FROM run_checkpoints
		WHERE run_id = ?`,
	insert: `
		INSERT IGNORE INTO run_checkpoints (run_id, graph, node_id, status, approved, step, version, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	update: `
		UPDATE run_checkpoints
		SET graph = ?, node_id = ?, status = ?, approved = ?, step = ?, version = ?, state = ?, updated_at = ?
		WHERE run_id = ? AND version = ?`,
	delete: "DELETE FROM run_checkpoints WHERE run_id = ?",
}
