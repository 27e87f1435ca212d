package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/graph/store"
)

type testState struct {
	Trail []string `json:"trail,omitempty"`
	Count int      `json:"count,omitempty"`
	Label string   `json:"label,omitempty"`
}

func reduce(prev, delta testState) testState {
	prev.Trail = append(prev.Trail, delta.Trail...)
	if delta.Count != 0 {
		prev.Count = delta.Count
	}
	if delta.Label != "" {
		prev.Label = delta.Label
	}
	return prev
}

// visit returns a node that appends its ID to the trail.
func visit(id string) Node[testState] {
	return NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Trail: []string{id}}}
	})
}

// counted wraps a node and counts its executions.
type counted struct {
	calls atomic.Int32
	inner Node[testState]
}

func (c *counted) Run(ctx context.Context, s testState) NodeResult[testState] {
	c.calls.Add(1)
	return c.inner.Run(ctx, s)
}

var errBoom = errors.New("boom")

func mustBuild(t *testing.T, b *Builder[testState]) *Definition[testState] {
	t.Helper()
	def, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return def
}

func newTestEngine(t *testing.T, def *Definition[testState], opts ...Option) (*Engine[testState], *store.MemStore[testState], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[testState]()
	buf := emit.NewBufferedEmitter()
	e, err := New(def, st, buf, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e, st, buf
}
