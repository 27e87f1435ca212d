package inquiry

import (
	"fmt"
	"strings"

	"github.com/deepakparameswar/csflow/graph/model"
	"github.com/deepakparameswar/csflow/internal/retrieval"
)

const supervisorPrompt = `You route customer messages for a life insurance support desk.
If the message describes a problem the customer is facing, set step to issue_analyser and type to issue.
If the message asks a question, set step to rag_search and type to query.`

const issueAnalyserPrompt = `You check whether a customer issue has enough detail to act on.
Rules:
1. Extract policyNumber if present, otherwise null.
2. Extract issueProblemDesc, a short description of the problem, if present, otherwise null.
3. validIssue is true only when both policyNumber and issueProblemDesc are not null.
4. missingProperties lists the names of every key whose value is null, or is empty when none is.`

const datasourcePrompt = `You choose where to look for the answer to a customer question.
vectorstore holds the insurer's FAQs on policies, premiums, loans and claims.
issue_sop_vectorstore holds standard operating procedures for customer issues such as payment failures, name corrections and vehicle damage.
%s`

const retrievalGraderPrompt = `You grade whether a retrieved document is relevant to a customer question.
The document is relevant if it shares keywords or meaning with the question and fits its context. This is not a stringent test; the goal is to drop wrong retrievals.`

const generatePrompt = `You answer customer service questions using ONLY the retrieved context.
Do not add information the context does not contain. If the context does not answer the question, say "I don't have enough information to answer this question."
Keep the answer within three sentences. When the answer has several steps, number them 1, 2, 3.`

const groundednessPrompt = `You check that an answer is grounded in a set of retrieved facts.
Score yes if the answer follows the intent and steps of the facts, even when details are inferred, and stays in the same domain.
Score no only if the answer invents APIs, policies or steps, contradicts the facts, or discusses a different problem.`

const answerGraderPrompt = `You check whether an answer is acceptable for the customer's question.
The supported issues include payment status problems, policy holder detail updates and vehicle damage estimation.
Score yes if the answer addresses the same issue category and gives useful information or next steps. Procedure steps and tool calls are valid answers.
Score no only if the answer is about a different issue or gives nothing actionable.`

const rewritePrompt = `You rewrite a customer question into a better version for document retrieval.
Keep its core intent, make it specific, and use keywords likely to appear in support documents.
Reply with the rewritten question only.`

const unresolvedAnswer = "We could not fully resolve your request from our knowledge base. A support agent will follow up with you."

var (
	routeSchema = model.MustSchema("route_decision", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"step": map[string]interface{}{"type": "string", "enum": []string{"rag_search", "issue_analyser"}},
			"type": map[string]interface{}{"type": "string", "enum": []string{"issue", "query"}},
		},
		"required": []string{"step", "type"},
	})

	issueSchema = model.MustSchema("issue_analysis", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"validIssue":        map[string]interface{}{"type": "boolean"},
			"missingProperties": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"issueProblemDesc":  map[string]interface{}{"type": []string{"string", "null"}},
			"policyNumber":      map[string]interface{}{"type": []string{"string", "null"}},
		},
		"required": []string{"validIssue", "missingProperties"},
	})

	gradeSchema = model.MustSchema("binary_grade", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"binary_score": map[string]interface{}{"type": "string", "enum": []string{"yes", "no"}},
		},
		"required": []string{"binary_score"},
	})
)

// datasourceSchema restricts the choice to the sources that are wired.
func datasourceSchema(web bool) *model.Schema {
	sources := []string{string(DatasourceVectorstore), string(DatasourceIssueSOP)}
	if web {
		sources = append(sources, string(DatasourceWebSearch))
	}
	return model.MustSchema("route_query", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"datasource": map[string]interface{}{"type": "string", "enum": sources},
		},
		"required": []string{"datasource"},
	})
}

func datasourceInstructions(web bool) string {
	if web {
		return fmt.Sprintf(datasourcePrompt, "Use web_search for anything else.")
	}
	return fmt.Sprintf(datasourcePrompt, "Pick the closer of the two.")
}

func formatDocuments(docs []retrieval.Document) string {
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, d.Content))
	}
	return strings.Join(parts, "\n\n")
}

func clarificationAnswer(missing []string) string {
	labels := map[string]string{
		PropertyPolicyNumber:     "your policy number",
		PropertyIssueProblemDesc: "a short description of the problem",
	}
	asks := make([]string, 0, len(missing))
	for _, m := range missing {
		if l, ok := labels[m]; ok {
			asks = append(asks, l)
		} else {
			asks = append(asks, m)
		}
	}
	if len(asks) == 0 {
		return "We could not identify an insurance issue in your message. Please describe the problem and include your policy number."
	}
	return "To look into this issue we need " + strings.Join(asks, " and ") + "."
}
