package graph

import (
	"errors"
	"strings"
	"testing"
)

func TestBuilder_Valid(t *testing.T) {
	def, err := NewBuilder[testState]("demo", reduce).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		AddConditionalEdges("a", func(s testState) string { return s.Label }, map[string]string{
			"left":  "b",
			"right": "c",
		}).
		AddEdge("b", End).
		AddEdge("c", "a").
		SetEntry("a").
		InterruptBefore("c").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if def.Name() != "demo" || def.Entry() != "a" {
		t.Errorf("unexpected name/entry: %s %s", def.Name(), def.Entry())
	}
	if got := strings.Join(def.Nodes(), ","); got != "a,b,c" {
		t.Errorf("Nodes() = %s", got)
	}
	if !def.Interrupts("c") || def.Interrupts("a") {
		t.Error("unexpected interrupt set")
	}
}

func TestBuilder_Problems(t *testing.T) {
	router := func(testState) string { return "x" }

	tests := []struct {
		name    string
		build   func() *Builder[testState]
		problem string
	}{
		{
			name: "duplicate node",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddNode("a", visit("a")).
					AddEdge("a", End).SetEntry("a")
			},
			problem: "duplicate node ID: a",
		},
		{
			name: "empty node ID",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("", visit("a")).AddNode("a", visit("a")).
					AddEdge("a", End).SetEntry("a")
			},
			problem: "node ID cannot be empty",
		},
		{
			name: "unknown edge target",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddEdge("a", "ghost").SetEntry("a")
			},
			problem: "edge from a to unregistered node: ghost",
		},
		{
			name: "unknown table target",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).
					AddConditionalEdges("a", router, map[string]string{"x": "ghost"}).
					SetEntry("a")
			},
			problem: "edge from a to unregistered node: ghost",
		},
		{
			name: "static and conditional on one node",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).
					AddEdge("a", End).
					AddConditionalEdges("a", router, map[string]string{"x": End}).
					SetEntry("a")
			},
			problem: "node a already has an edge to " + End,
		},
		{
			name: "no outgoing edge",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge("a", "b").SetEntry("a")
			},
			problem: "node has no outgoing edge: b",
		},
		{
			name: "missing entry",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddEdge("a", End)
			},
			problem: "entry node not set",
		},
		{
			name: "unregistered entry",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddEdge("a", End).SetEntry("z")
			},
			problem: "entry node is not registered: z",
		},
		{
			name: "unregistered interrupt",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddEdge("a", End).SetEntry("a").InterruptBefore("z")
			},
			problem: "interrupt on unregistered node: z",
		},
		{
			name: "unreachable node",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).AddNode("b", visit("b")).
					AddEdge("a", End).AddEdge("b", End).SetEntry("a")
			},
			problem: "node is unreachable from entry: b",
		},
		{
			name: "nil router",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).
					AddConditionalEdges("a", nil, map[string]string{"x": End}).
					SetEntry("a")
			},
			problem: "node a: router is nil",
		},
		{
			name: "empty table",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a")).
					AddConditionalEdges("a", router, nil).
					SetEntry("a")
			},
			problem: "node a: routing table is empty",
		},
		{
			name: "invalid retry policy",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", reduce).
					AddNode("a", visit("a"), WithRetry(RetryPolicy{MaxAttempts: 0})).
					AddEdge("a", End).SetEntry("a")
			},
			problem: "node a: invalid retry policy",
		},
		{
			name: "nil reducer",
			build: func() *Builder[testState] {
				return NewBuilder[testState]("g", nil).
					AddNode("a", visit("a")).AddEdge("a", End).SetEntry("a")
			},
			problem: "reducer is nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := tt.build().Build()
			if def != nil {
				t.Fatal("expected nil definition")
			}
			var gde *GraphDefinitionError
			if !errors.As(err, &gde) {
				t.Fatalf("expected *GraphDefinitionError, got %T: %v", err, err)
			}
			if gde.Graph != "g" {
				t.Errorf("Graph = %q", gde.Graph)
			}
			found := false
			for _, p := range gde.Problems {
				if p == tt.problem {
					found = true
				}
			}
			if !found {
				t.Errorf("problem %q not in %q", tt.problem, gde.Problems)
			}
		})
	}
}

func TestBuilder_ReportsAllProblems(t *testing.T) {
	_, err := NewBuilder[testState]("g", reduce).
		AddNode("a", visit("a")).
		AddNode("a", visit("a")).
		AddEdge("a", "ghost").
		InterruptBefore("z").
		Build()

	var gde *GraphDefinitionError
	if !errors.As(err, &gde) {
		t.Fatalf("expected *GraphDefinitionError, got %v", err)
	}
	if len(gde.Problems) < 4 {
		t.Errorf("expected every problem to be reported, got %q", gde.Problems)
	}
}

func TestDefinition_ImmutableAfterBuild(t *testing.T) {
	b := NewBuilder[testState]("g", reduce).
		AddNode("a", visit("a")).AddEdge("a", End).SetEntry("a")
	def := mustBuild(t, b)

	b.AddNode("b", visit("b")).InterruptBefore("a")

	if len(def.Nodes()) != 1 || def.Interrupts("a") {
		t.Error("builder changes leaked into a built definition")
	}
}
