package graph

import "github.com/deepakparameswar/csflow/graph/store"

// Outcome describes where a Run, Resume or Cancel call left the run.
type Outcome[S any] struct {
	RunID string

	// Status is complete when the run reached End, pending when it halted
	// before an approval gate, and cancelled after Cancel.
	Status store.Status

	// NodeID is the gate node for a pending run and End for a complete one.
	NodeID string

	// Step counts nodes executed over the run's lifetime.
	Step int

	// State is the state at the point the run stopped.
	State S
}

// Pending reports whether the run is waiting for approval.
func (o Outcome[S]) Pending() bool {
	return o.Status == store.StatusPending
}

// Complete reports whether the run reached End.
func (o Outcome[S]) Complete() bool {
	return o.Status == store.StatusComplete
}
