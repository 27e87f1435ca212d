// Package graph provides the checkpointed graph execution engine.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when an operation needs an existing checkpoint
// and none is stored for the run ID.
var ErrRunNotFound = errors.New("run not found")

// ErrRunAlreadyComplete is returned when a run has reached the terminal marker,
// was cancelled, or was aborted at the step limit, and cannot execute again.
var ErrRunAlreadyComplete = errors.New("run already complete")

// ErrRunConflict is returned when another call owns the run or advanced it
// between this call's load and its claim. The losing call has not executed
// any node.
var ErrRunConflict = errors.New("run modified concurrently")

// ErrInvalidRetryPolicy is returned when a RetryPolicy fails validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// NodeExecutionError reports a node that failed after its retry budget. The
// checkpoint is saved as failed at that node, so a later Run or Resume
// re-executes it with the same state.
type NodeExecutionError struct {
	RunID  string
	NodeID string
	Step   int
	Cause  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("run %s: node %s failed at step %d: %v", e.RunID, e.NodeID, e.Step, e.Cause)
}

// Unwrap returns the underlying node error.
func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// RoutingError reports a router that returned a label missing from its table.
type RoutingError struct {
	Graph  string
	NodeID string
	Label  string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("graph %s: router after %s returned unknown label %q", e.Graph, e.NodeID, e.Label)
}

// GraphDefinitionError lists every problem found while building a graph.
type GraphDefinitionError struct {
	Graph    string
	Problems []string
}

func (e *GraphDefinitionError) Error() string {
	return fmt.Sprintf("graph %s: invalid definition: %s", e.Graph, strings.Join(e.Problems, "; "))
}

// EngineError represents an error from Engine operations: configuration,
// persistence, and step limits.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
