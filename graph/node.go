package graph

import (
	"context"
	"time"
)

// Node represents a processing unit in the workflow graph.
// It receives state of type S, performs computation, and returns a NodeResult.
//
// A node can call a language model, a retriever or a tool. It never decides
// where execution goes next; routing belongs to the graph's edges.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	// The state is a private copy; the node returns its changes as a delta.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult represents the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It will be merged with the current state using the graph's reducer.
	Delta S

	// Err contains any error that occurred during node execution.
	// A non-nil error stops the run; the checkpoint keeps the last good state.
	Err error
}

// NodeFunc is a function adapter that implements the Node interface.
// It allows using plain functions as nodes without creating custom types.
//
// Example:
//
//	generate := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Generation: "..."}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Fail returns a NodeResult carrying only an error.
func Fail[S any](err error) NodeResult[S] {
	return NodeResult[S]{Err: err}
}

// NodeOption configures a node when it is registered with a Builder.
type NodeOption func(*NodePolicy)

// WithTimeout bounds a single attempt of the node. It overrides the engine's
// default node timeout.
func WithTimeout(d time.Duration) NodeOption {
	return func(p *NodePolicy) {
		p.Timeout = d
	}
}

// WithRetry attaches a retry policy to the node.
func WithRetry(rp RetryPolicy) NodeOption {
	return func(p *NodePolicy) {
		p.RetryPolicy = &rp
	}
}
