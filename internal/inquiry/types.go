package inquiry

import (
	"fmt"

	"github.com/deepakparameswar/csflow/graph/model"
)

// Decision is the supervisor's choice of pipeline.
type Decision string

const (
	DecisionRAGSearch     Decision = "rag_search"
	DecisionIssueAnalyser Decision = "issue_analyser"
)

// ParseDecision validates a model-supplied decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionRAGSearch, DecisionIssueAnalyser:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", model.ErrMalformedOutput, s)
}

// QueryType classifies the customer's input.
type QueryType string

const (
	TypeIssue QueryType = "issue"
	TypeQuery QueryType = "query"
)

// ParseQueryType validates a model-supplied input type.
func ParseQueryType(s string) (QueryType, error) {
	switch t := QueryType(s); t {
	case TypeIssue, TypeQuery:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown input type %q", model.ErrMalformedOutput, s)
}

// Datasource is where context for the answer comes from.
type Datasource string

const (
	DatasourceVectorstore Datasource = "vectorstore"
	DatasourceWebSearch   Datasource = "web_search"
	DatasourceIssueSOP    Datasource = "issue_sop_vectorstore"
)

// ParseDatasource validates a model-supplied datasource.
func ParseDatasource(s string) (Datasource, error) {
	switch d := Datasource(s); d {
	case DatasourceVectorstore, DatasourceWebSearch, DatasourceIssueSOP:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown datasource %q", model.ErrMalformedOutput, s)
}

// Score is a binary grader verdict.
type Score string

const (
	ScoreYes Score = "yes"
	ScoreNo  Score = "no"
)

// ParseScore validates a model-supplied binary score.
func ParseScore(s string) (Score, error) {
	switch v := Score(s); v {
	case ScoreYes, ScoreNo:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown binary score %q", model.ErrMalformedOutput, s)
}

// Grade is the quality verdict on a generation.
type Grade string

const (
	GradeUseful       Grade = "useful"
	GradeNotUseful    Grade = "not_useful"
	GradeNotSupported Grade = "not_supported"
)

// Resolution is how an inquiry run ended.
type Resolution string

const (
	ResolutionAnswered           Resolution = "answered"
	ResolutionUnresolved         Resolution = "unresolved"
	ResolutionNeedsClarification Resolution = "needs_clarification"
)

// Missing property names reported by the issue analyser.
const (
	PropertyPolicyNumber     = "policyNumber"
	PropertyIssueProblemDesc = "issueProblemDesc"
)
