package inquiry

import (
	"errors"
	"time"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/model"
	"github.com/deepakparameswar/csflow/internal/retrieval"
	"github.com/deepakparameswar/csflow/internal/websearch"
)

// GraphName identifies inquiry runs in checkpoints and metrics.
const GraphName = "inquiry"

// DefaultMaxRevisions bounds the rewrite-and-retry loop.
const DefaultMaxRevisions = 3

// Node IDs.
const (
	NodeSupervisor      = "supervisor"
	NodeIssueAnalyser   = "issue_analyser"
	NodeClarify         = "clarify"
	NodeRAGRoute        = "rag_route"
	NodeWebSearch       = "web_search"
	NodeRetrieve        = "retrieve"
	NodeGradeDocuments  = "grade_documents"
	NodeGenerate        = "generate"
	NodeGradeGeneration = "grade_generation"
	NodeTransformQuery  = "transform_query"
	NodeFallback        = "fallback"
)

// Deps are the collaborators of the inquiry graph.
type Deps struct {
	Model     model.ChatModel
	Retriever retrieval.Retriever

	// Searcher is optional. Without it the datasource router never offers web search.
	Searcher websearch.Searcher

	// MaxRevisions defaults to DefaultMaxRevisions.
	MaxRevisions int

	// K defaults to retrieval.DefaultK.
	K int

	// NodeTimeout applies to nodes that call collaborators. Zero defers to
	// the engine default.
	NodeTimeout time.Duration

	// Retry, when set, applies to nodes that call collaborators.
	Retry *graph.RetryPolicy
}

// NewDefinition builds the inquiry graph:
//
//	supervisor ─┬─ rag_search ──────────────────────────────► rag_route
//	            └─ issue_analyser ─┬─ valid ────────────────► rag_route
//	                               └─ incomplete ─► clarify ─► End
//	rag_route ─┬─ web_search ─► generate
//	           └─ vectorstore ─► retrieve ─► grade_documents ─┬─ generate
//	                                                          ├─ transform_query
//	                                                          └─ fallback ─► End
//	generate ─► grade_generation ─┬─ useful ─► End
//	                              ├─ retry ─► transform_query ─► retrieve
//	                              └─ exhausted ─► fallback
func NewDefinition(deps Deps) (*graph.Definition[State], error) {
	if deps.Model == nil {
		return nil, errors.New("inquiry: chat model is required")
	}
	if deps.Retriever == nil {
		return nil, errors.New("inquiry: retriever is required")
	}
	if deps.MaxRevisions <= 0 {
		deps.MaxRevisions = DefaultMaxRevisions
	}
	if deps.K <= 0 {
		deps.K = retrieval.DefaultK
	}

	n := &nodes{deps: deps}
	var callOpts []graph.NodeOption
	if deps.NodeTimeout > 0 {
		callOpts = append(callOpts, graph.WithTimeout(deps.NodeTimeout))
	}
	if deps.Retry != nil {
		callOpts = append(callOpts, graph.WithRetry(*deps.Retry))
	}

	return graph.NewBuilder[State](GraphName, Reduce).
		AddNode(NodeSupervisor, graph.NodeFunc[State](n.supervisor), callOpts...).
		AddNode(NodeIssueAnalyser, graph.NodeFunc[State](n.issueAnalyser), callOpts...).
		AddNode(NodeClarify, graph.NodeFunc[State](n.clarify)).
		AddNode(NodeRAGRoute, graph.NodeFunc[State](n.ragRoute), callOpts...).
		AddNode(NodeWebSearch, graph.NodeFunc[State](n.webSearch), callOpts...).
		AddNode(NodeRetrieve, graph.NodeFunc[State](n.retrieve), callOpts...).
		AddNode(NodeGradeDocuments, graph.NodeFunc[State](n.gradeDocuments), callOpts...).
		AddNode(NodeGenerate, graph.NodeFunc[State](n.generate), callOpts...).
		AddNode(NodeGradeGeneration, graph.NodeFunc[State](n.gradeGeneration), callOpts...).
		AddNode(NodeTransformQuery, graph.NodeFunc[State](n.transformQuery), callOpts...).
		AddNode(NodeFallback, graph.NodeFunc[State](n.fallback)).
		SetEntry(NodeSupervisor).
		AddConditionalEdges(NodeSupervisor, routeSupervisor, map[string]string{
			string(DecisionRAGSearch):     NodeRAGRoute,
			string(DecisionIssueAnalyser): NodeIssueAnalyser,
		}).
		AddConditionalEdges(NodeIssueAnalyser, routeIssue, map[string]string{
			"valid":      NodeRAGRoute,
			"incomplete": NodeClarify,
		}).
		AddEdge(NodeClarify, graph.End).
		AddConditionalEdges(NodeRAGRoute, routeDatasource, map[string]string{
			"web_search":  NodeWebSearch,
			"vectorstore": NodeRetrieve,
		}).
		AddEdge(NodeWebSearch, NodeGenerate).
		AddEdge(NodeRetrieve, NodeGradeDocuments).
		AddConditionalEdges(NodeGradeDocuments, routeDocuments(deps.MaxRevisions), map[string]string{
			"generate":        NodeGenerate,
			"transform_query": NodeTransformQuery,
			"exhausted":       NodeFallback,
		}).
		AddEdge(NodeGenerate, NodeGradeGeneration).
		AddConditionalEdges(NodeGradeGeneration, routeGeneration(deps.MaxRevisions), map[string]string{
			"useful":    graph.End,
			"retry":     NodeTransformQuery,
			"exhausted": NodeFallback,
		}).
		AddEdge(NodeTransformQuery, NodeRetrieve).
		AddEdge(NodeFallback, graph.End).
		Build()
}

// routeSupervisor follows the supervisor's decision. An unset decision yields
// an empty label, which the engine reports as a routing error.
func routeSupervisor(s State) string {
	return string(s.Decision)
}

func routeIssue(s State) string {
	if s.IsValidIssue() {
		return "valid"
	}
	return "incomplete"
}

func routeDatasource(s State) string {
	switch s.Datasource {
	case DatasourceWebSearch:
		return "web_search"
	case DatasourceVectorstore, DatasourceIssueSOP:
		return "vectorstore"
	}
	return ""
}

func routeDocuments(maxRevisions int) graph.Router[State] {
	return func(s State) string {
		switch {
		case len(s.Documents) > 0:
			return "generate"
		case s.Revisions < maxRevisions:
			return "transform_query"
		default:
			return "exhausted"
		}
	}
}

func routeGeneration(maxRevisions int) graph.Router[State] {
	return func(s State) string {
		switch {
		case s.Grade == GradeUseful:
			return "useful"
		case s.Revisions < maxRevisions:
			return "retry"
		default:
			return "exhausted"
		}
	}
}
