package graph

import (
	"fmt"
	"sort"
)

// End is the terminal marker. An edge to End completes the run.
const End = "__end__"

type nodeSpec[S any] struct {
	node   Node[S]
	policy NodePolicy
}

// Definition is a validated, immutable graph: nodes, edges, entry point and
// interrupt set. Build it with a Builder and share it between engines freely.
type Definition[S any] struct {
	name       string
	reducer    Reducer[S]
	nodes      map[string]nodeSpec[S]
	edges      map[string]edge[S]
	entry      string
	interrupts map[string]bool
}

// Name returns the graph name recorded in checkpoints.
func (d *Definition[S]) Name() string { return d.name }

// Entry returns the entry node ID.
func (d *Definition[S]) Entry() string { return d.entry }

// Nodes returns the registered node IDs in sorted order.
func (d *Definition[S]) Nodes() []string {
	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Interrupts reports whether execution halts for approval before nodeID.
func (d *Definition[S]) Interrupts(nodeID string) bool {
	return d.interrupts[nodeID]
}

// next resolves the node that follows from given the merged state.
func (d *Definition[S]) next(from string, state S) (string, error) {
	e, ok := d.edges[from]
	if !ok {
		return "", &RoutingError{Graph: d.name, NodeID: from}
	}
	if !e.conditional() {
		return e.to, nil
	}
	label := e.router(state)
	to, ok := e.table[label]
	if !ok {
		return "", &RoutingError{Graph: d.name, NodeID: from, Label: label}
	}
	return to, nil
}

// Builder registers a graph's topology. Registration methods record problems
// instead of failing, and Build reports all of them at once.
//
// Example:
//
//	b := graph.NewBuilder[State]("sop", reduce)
//	b.AddNode("assistant", assistant)
//	b.AddNode("tools", tools, graph.WithTimeout(30*time.Second))
//	b.AddConditionalEdges("assistant", routeAssistant, map[string]string{
//	    "tools": "tools",
//	    "done":  graph.End,
//	})
//	b.AddEdge("tools", "assistant")
//	b.SetEntry("assistant")
//	b.InterruptBefore("tools")
//	def, err := b.Build()
type Builder[S any] struct {
	def      *Definition[S]
	order    []string
	problems []string
}

// NewBuilder starts a graph definition.
func NewBuilder[S any](name string, reducer Reducer[S]) *Builder[S] {
	return &Builder[S]{
		def: &Definition[S]{
			name:       name,
			reducer:    reducer,
			nodes:      make(map[string]nodeSpec[S]),
			edges:      make(map[string]edge[S]),
			interrupts: make(map[string]bool),
		},
	}
}

func (b *Builder[S]) problemf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// AddNode registers a node under a unique ID.
func (b *Builder[S]) AddNode(id string, node Node[S], opts ...NodeOption) *Builder[S] {
	switch {
	case id == "":
		b.problemf("node ID cannot be empty")
		return b
	case id == End:
		b.problemf("node ID %q is reserved", End)
		return b
	case node == nil:
		b.problemf("node %s is nil", id)
		return b
	}
	if _, exists := b.def.nodes[id]; exists {
		b.problemf("duplicate node ID: %s", id)
		return b
	}

	var policy NodePolicy
	for _, opt := range opts {
		opt(&policy)
	}
	if policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			b.problemf("node %s: %v", id, err)
		}
	}

	b.def.nodes[id] = nodeSpec[S]{node: node, policy: policy}
	b.order = append(b.order, id)
	return b
}

// AddEdge adds a static transition from one node to another (or to End).
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if b.hasEdge(from) {
		return b
	}
	b.def.edges[from] = edge[S]{to: to}
	return b
}

// AddConditionalEdges attaches a router to a node. After the node runs, the
// router's label selects the target from table.
func (b *Builder[S]) AddConditionalEdges(from string, router Router[S], table map[string]string) *Builder[S] {
	if b.hasEdge(from) {
		return b
	}
	if router == nil {
		b.problemf("node %s: router is nil", from)
	}
	if len(table) == 0 {
		b.problemf("node %s: routing table is empty", from)
	}

	copied := make(map[string]string, len(table))
	for label, to := range table {
		copied[label] = to
	}
	b.def.edges[from] = edge[S]{router: router, table: copied}
	return b
}

func (b *Builder[S]) hasEdge(from string) bool {
	existing, ok := b.def.edges[from]
	if !ok {
		return false
	}
	if existing.conditional() {
		b.problemf("node %s already has conditional edges", from)
	} else {
		b.problemf("node %s already has an edge to %s", from, existing.to)
	}
	return true
}

// SetEntry sets the node where new runs start.
func (b *Builder[S]) SetEntry(id string) *Builder[S] {
	b.def.entry = id
	return b
}

// InterruptBefore marks nodes that require approval before they execute.
func (b *Builder[S]) InterruptBefore(ids ...string) *Builder[S] {
	for _, id := range ids {
		b.def.interrupts[id] = true
	}
	return b
}

// Build validates the registered topology and returns the immutable
// definition, or a *GraphDefinitionError listing every problem found.
func (b *Builder[S]) Build() (*Definition[S], error) {
	d := b.def
	problems := append([]string(nil), b.problems...)

	if d.reducer == nil {
		problems = append(problems, "reducer is nil")
	}

	switch {
	case d.entry == "":
		problems = append(problems, "entry node not set")
	case d.nodes[d.entry].node == nil:
		problems = append(problems, "entry node is not registered: "+d.entry)
	}

	froms := make([]string, 0, len(d.edges))
	for from := range d.edges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		if _, ok := d.nodes[from]; !ok {
			problems = append(problems, "edge from unregistered node: "+from)
		}
		targets := d.edges[from].targets()
		sort.Strings(targets)
		for _, to := range targets {
			if to == End {
				continue
			}
			if _, ok := d.nodes[to]; !ok {
				problems = append(problems, fmt.Sprintf("edge from %s to unregistered node: %s", from, to))
			}
		}
	}

	for _, id := range b.order {
		if _, ok := d.edges[id]; !ok {
			problems = append(problems, "node has no outgoing edge: "+id)
		}
	}

	interrupts := make([]string, 0, len(d.interrupts))
	for id := range d.interrupts {
		interrupts = append(interrupts, id)
	}
	sort.Strings(interrupts)
	for _, id := range interrupts {
		if _, ok := d.nodes[id]; !ok {
			problems = append(problems, "interrupt on unregistered node: "+id)
		}
	}

	if d.nodes[d.entry].node != nil {
		reached := b.reachable()
		for _, id := range b.order {
			if !reached[id] {
				problems = append(problems, "node is unreachable from entry: "+id)
			}
		}
	}

	if len(problems) > 0 {
		return nil, &GraphDefinitionError{Graph: d.name, Problems: problems}
	}
	return d.clone(), nil
}

func (d *Definition[S]) clone() *Definition[S] {
	c := &Definition[S]{
		name:       d.name,
		reducer:    d.reducer,
		entry:      d.entry,
		nodes:      make(map[string]nodeSpec[S], len(d.nodes)),
		edges:      make(map[string]edge[S], len(d.edges)),
		interrupts: make(map[string]bool, len(d.interrupts)),
	}
	for k, v := range d.nodes {
		c.nodes[k] = v
	}
	for k, v := range d.edges {
		c.edges[k] = v
	}
	for k, v := range d.interrupts {
		c.interrupts[k] = v
	}
	return c
}

func (b *Builder[S]) reachable() map[string]bool {
	d := b.def
	seen := map[string]bool{d.entry: true}
	queue := []string{d.entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		e, ok := d.edges[id]
		if !ok {
			continue
		}
		for _, to := range e.targets() {
			if to == End || seen[to] {
				continue
			}
			seen[to] = true
			queue = append(queue, to)
		}
	}
	return seen
}
