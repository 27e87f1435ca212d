package graph

// Router chooses the next branch after a node from the merged state.
//
// Routers must be pure functions: the same state always yields the same
// label, and they never call collaborators. The returned label is looked up
// in the table passed to AddConditionalEdges; a label missing from the table
// is a RoutingError.
//
// Common patterns:
//   - Classification: return the enum a node wrote into state
//   - Quality gate: compare a grade and a retry counter
//   - Validity gate: check that required fields are present
//
// Type parameter S is the state type to evaluate.
type Router[S any] func(state S) string

// edge is the single outgoing transition of a node: either a static target or
// a router with its label table.
type edge[S any] struct {
	to     string
	router Router[S]
	table  map[string]string
}

func (e edge[S]) conditional() bool {
	return e.router != nil || e.table != nil
}

// targets lists every node this edge can lead to.
func (e edge[S]) targets() []string {
	if !e.conditional() {
		return []string{e.to}
	}
	out := make([]string, 0, len(e.table))
	for _, to := range e.table {
		out = append(out, to)
	}
	return out
}
