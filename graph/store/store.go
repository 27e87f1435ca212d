package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a run ID.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Save when the checkpoint version does not follow
// the stored version. Another writer advanced the run first.
var ErrConflict = errors.New("version conflict")

// Status is the lifecycle state of a run as recorded in its checkpoint.
type Status string

const (
	// StatusRunning means a call owns the run and is executing from the
	// cursor. Other callers must not execute it.
	StatusRunning Status = "running"

	// StatusFailed means the node at the cursor failed. The run can be claimed
	// again by Run or Resume.
	StatusFailed Status = "failed"

	// StatusPending means the run halted at an interrupt node and waits for approval.
	StatusPending Status = "pending"

	// StatusComplete means the run reached the terminal marker.
	StatusComplete Status = "complete"

	// StatusCancelled means the caller abandoned the run (approval denied).
	StatusCancelled Status = "cancelled"

	// StatusAborted means the engine stopped the run at its step limit.
	StatusAborted Status = "aborted"
)

// Closed reports whether no further execution is allowed for the run.
func (s Status) Closed() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusAborted
}

// Checkpoint is the persisted snapshot of one run: its state and the engine's
// execution cursor.
//
// Version increases by exactly one on every write. Save uses it for optimistic
// concurrency so two writers racing on the same run ID cannot both succeed.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Checkpoint[S any] struct {
	// RunID is the caller-supplied run identifier (conversation or thread ID).
	RunID string `json:"run_id"`

	// Graph is the name of the graph definition that owns the run.
	Graph string `json:"graph"`

	// NodeID is the node to execute next. It holds the terminal marker once
	// the run is complete.
	NodeID string `json:"node_id"`

	// Status is the run lifecycle state.
	Status Status `json:"status"`

	// Approved opens the interrupt gate at NodeID for exactly one execution.
	Approved bool `json:"approved"`

	// Step counts the nodes executed so far.
	Step int `json:"step"`

	// Version is the optimistic concurrency token.
	Version int64 `json:"version"`

	// State is the accumulated run state.
	State S `json:"state"`

	// UpdatedAt records the last write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists checkpoints keyed by run ID.
//
// Implementations must make operations on the same run ID linearizable and
// must not buffer writes: a Save that returned nil is visible to the next Load.
//
// Implementations:
//   - MemStore: in-process map (tests, single instance)
//   - SQLiteStore: single-file database
//   - MySQLStore, PostgresStore: shared relational databases
//   - RedisStore: key-value with optional retention TTL
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Load returns the checkpoint for runID, or ErrNotFound.
	Load(ctx context.Context, runID string) (Checkpoint[S], error)

	// Save writes cp. cp.Version must be 1 when no checkpoint exists for the
	// run, and the stored version plus one otherwise; any other value returns
	// ErrConflict.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// Delete removes the checkpoint for runID. Deleting a missing run is not
	// an error.
	Delete(ctx context.Context, runID string) error
}
