// Package inquiry implements the customer inquiry graph: it classifies a
// question, analyses issues for completeness, retrieves and grades context,
// and generates an answer under a bounded rewrite-and-retry loop.
package inquiry

import "github.com/deepakparameswar/csflow/internal/retrieval"

// State is the inquiry run state. Every field is optional; a node returns a
// delta holding only the fields it sets.
type State struct {
	Question         string `json:"question,omitempty"`
	OriginalQuestion string `json:"original_question,omitempty"`

	Decision   Decision   `json:"decision,omitempty"`
	Type       QueryType  `json:"type,omitempty"`
	Datasource Datasource `json:"datasource,omitempty"`

	// Documents is the current context. A non-nil empty slice in a delta
	// clears it.
	Documents []retrieval.Document `json:"documents,omitempty"`

	Generation string `json:"generation,omitempty"`

	// Draft keeps the last generated answer when the run ends unresolved.
	Draft string `json:"draft,omitempty"`

	ValidIssue        *bool    `json:"valid_issue,omitempty"`
	MissingProperties []string `json:"missing_properties,omitempty"`
	IssueProblemDesc  *string  `json:"issue_problem_desc,omitempty"`
	PolicyNumber      *string  `json:"policy_number,omitempty"`

	// Revisions counts question rewrites.
	Revisions int `json:"revisions,omitempty"`

	Grade      Grade      `json:"grade,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// Reduce merges a node delta into the previous state. Only fields the delta
// sets are overwritten.
func Reduce(prev, delta State) State {
	if delta.Question != "" {
		prev.Question = delta.Question
	}
	if delta.OriginalQuestion != "" {
		prev.OriginalQuestion = delta.OriginalQuestion
	}
	if delta.Decision != "" {
		prev.Decision = delta.Decision
	}
	if delta.Type != "" {
		prev.Type = delta.Type
	}
	if delta.Datasource != "" {
		prev.Datasource = delta.Datasource
	}
	if delta.Documents != nil {
		prev.Documents = delta.Documents
	}
	if delta.Generation != "" {
		prev.Generation = delta.Generation
	}
	if delta.Draft != "" {
		prev.Draft = delta.Draft
	}
	if delta.ValidIssue != nil {
		prev.ValidIssue = delta.ValidIssue
	}
	if delta.MissingProperties != nil {
		prev.MissingProperties = delta.MissingProperties
	}
	if delta.IssueProblemDesc != nil {
		prev.IssueProblemDesc = delta.IssueProblemDesc
	}
	if delta.PolicyNumber != nil {
		prev.PolicyNumber = delta.PolicyNumber
	}
	if delta.Revisions != 0 {
		prev.Revisions = delta.Revisions
	}
	if delta.Grade != "" {
		prev.Grade = delta.Grade
	}
	if delta.Resolution != "" {
		prev.Resolution = delta.Resolution
	}
	return prev
}

// IsValidIssue reports whether the analyser accepted the issue and extracted
// both a policy number and a problem description.
func (s State) IsValidIssue() bool {
	return s.ValidIssue != nil && *s.ValidIssue &&
		s.PolicyNumber != nil && *s.PolicyNumber != "" &&
		s.IssueProblemDesc != nil && *s.IssueProblemDesc != ""
}

// Answer is the text returned to the customer.
func (s State) Answer() string {
	return s.Generation
}
