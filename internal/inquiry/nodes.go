package inquiry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/model"
	"github.com/deepakparameswar/csflow/internal/retrieval"
)

// ErrEmptyReply is returned when the model answers a free-text prompt with
// nothing.
var ErrEmptyReply = errors.New("empty model reply")

// maxParallelGrades bounds concurrent document grading calls.
const maxParallelGrades = 3

type nodes struct {
	deps Deps
}

func system(prompt string) model.Message {
	return model.Message{Role: model.RoleSystem, Content: prompt}
}

func user(content string) model.Message {
	return model.Message{Role: model.RoleUser, Content: content}
}

func (n *nodes) supervisor(ctx context.Context, s State) graph.NodeResult[State] {
	var out struct {
		Step string `json:"step"`
		Type string `json:"type"`
	}
	if err := model.Structured(ctx, n.deps.Model, []model.Message{system(supervisorPrompt), user(s.Question)}, routeSchema, &out); err != nil {
		return graph.Fail[State](err)
	}
	decision, err := ParseDecision(out.Step)
	if err != nil {
		return graph.Fail[State](err)
	}
	typ, err := ParseQueryType(out.Type)
	if err != nil {
		return graph.Fail[State](err)
	}

	delta := State{Decision: decision, Type: typ}
	if s.OriginalQuestion == "" {
		delta.OriginalQuestion = s.Question
	}
	return graph.NodeResult[State]{Delta: delta}
}

func (n *nodes) issueAnalyser(ctx context.Context, s State) graph.NodeResult[State] {
	var out struct {
		ValidIssue        bool     `json:"validIssue"`
		MissingProperties []string `json:"missingProperties"`
		IssueProblemDesc  *string  `json:"issueProblemDesc"`
		PolicyNumber      *string  `json:"policyNumber"`
	}
	if err := model.Structured(ctx, n.deps.Model, []model.Message{system(issueAnalyserPrompt), user(s.Question)}, issueSchema, &out); err != nil {
		return graph.Fail[State](err)
	}

	policy := trimmed(out.PolicyNumber)
	desc := trimmed(out.IssueProblemDesc)

	// The missing list always names the absent fields, whatever the model listed.
	missing := map[string]bool{}
	for _, m := range out.MissingProperties {
		if m != "" {
			missing[m] = true
		}
	}
	missing[PropertyPolicyNumber] = policy == nil
	missing[PropertyIssueProblemDesc] = desc == nil

	props := make([]string, 0, len(missing))
	for m, absent := range missing {
		if absent {
			props = append(props, m)
		}
	}
	sort.Strings(props)

	valid := out.ValidIssue && policy != nil && desc != nil
	return graph.NodeResult[State]{Delta: State{
		ValidIssue:        &valid,
		MissingProperties: props,
		IssueProblemDesc:  desc,
		PolicyNumber:      policy,
	}}
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func (n *nodes) clarify(_ context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{
		Generation: clarificationAnswer(s.MissingProperties),
		Resolution: ResolutionNeedsClarification,
	}}
}

func (n *nodes) ragRoute(ctx context.Context, s State) graph.NodeResult[State] {
	web := n.deps.Searcher != nil
	var out struct {
		Datasource string `json:"datasource"`
	}
	msgs := []model.Message{system(datasourceInstructions(web)), user(s.Question)}
	if err := model.Structured(ctx, n.deps.Model, msgs, datasourceSchema(web), &out); err != nil {
		return graph.Fail[State](err)
	}
	ds, err := ParseDatasource(out.Datasource)
	if err != nil {
		return graph.Fail[State](err)
	}
	return graph.NodeResult[State]{Delta: State{Datasource: ds}}
}

func (n *nodes) webSearch(ctx context.Context, s State) graph.NodeResult[State] {
	if n.deps.Searcher == nil {
		return graph.Fail[State](errors.New("web search is not configured"))
	}
	results, err := n.deps.Searcher.Search(ctx, s.Question)
	if err != nil {
		return graph.Fail[State](err)
	}

	contents := make([]string, 0, len(results))
	for _, r := range results {
		if c := strings.TrimSpace(r.Content); c != "" {
			contents = append(contents, c)
		}
	}
	doc := retrieval.Document{
		Content:  strings.Join(contents, "\n"),
		Metadata: map[string]string{"category": "web", "source": "web_search"},
	}
	return graph.NodeResult[State]{Delta: State{Documents: []retrieval.Document{doc}}}
}

func (n *nodes) retrieve(ctx context.Context, s State) graph.NodeResult[State] {
	query := s.Question
	filter := retrieval.CategoryLifeQuery
	var delta State

	if (s.Type == TypeIssue && s.IsValidIssue()) || s.Datasource == DatasourceIssueSOP {
		filter = retrieval.CategoryIssueSOP
	}
	// The first issue lookup searches by the extracted problem; rewrites take over after that.
	if s.IsValidIssue() && s.Revisions == 0 {
		query = *s.IssueProblemDesc
		delta.Question = query
	}

	docs, err := n.deps.Retriever.Search(ctx, query, n.deps.K, filter)
	if err != nil {
		return graph.Fail[State](err)
	}
	if docs == nil {
		docs = []retrieval.Document{}
	}
	delta.Documents = docs
	return graph.NodeResult[State]{Delta: delta}
}

func (n *nodes) gradeDocuments(ctx context.Context, s State) graph.NodeResult[State] {
	keep := make([]bool, len(s.Documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelGrades)
	for i, doc := range s.Documents {
		g.Go(func() error {
			score, err := n.binaryGrade(gctx, retrievalGraderPrompt,
				fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", doc.Content, s.Question))
			if err != nil {
				return err
			}
			keep[i] = score == ScoreYes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return graph.Fail[State](err)
	}

	relevant := make([]retrieval.Document, 0, len(s.Documents))
	for i, doc := range s.Documents {
		if keep[i] {
			relevant = append(relevant, doc)
		}
	}
	return graph.NodeResult[State]{Delta: State{Documents: relevant}}
}

func (n *nodes) binaryGrade(ctx context.Context, prompt, content string) (Score, error) {
	var out struct {
		BinaryScore string `json:"binary_score"`
	}
	if err := model.Structured(ctx, n.deps.Model, []model.Message{system(prompt), user(content)}, gradeSchema, &out); err != nil {
		return "", err
	}
	return ParseScore(out.BinaryScore)
}

func (n *nodes) generate(ctx context.Context, s State) graph.NodeResult[State] {
	reply, err := n.deps.Model.Chat(ctx, []model.Message{
		system(generatePrompt),
		user(fmt.Sprintf("Question: %s\n\nContext: %s\n\nAnswer:", s.Question, formatDocuments(s.Documents))),
	}, nil)
	if err != nil {
		return graph.Fail[State](err)
	}
	answer := strings.TrimSpace(reply.Text)
	if answer == "" {
		return graph.Fail[State](fmt.Errorf("generate: %w", ErrEmptyReply))
	}
	return graph.NodeResult[State]{Delta: State{Generation: answer}}
}

func (n *nodes) gradeGeneration(ctx context.Context, s State) graph.NodeResult[State] {
	grounded, err := n.binaryGrade(ctx, groundednessPrompt,
		fmt.Sprintf("Set of facts:\n\n%s\n\nLLM generation: %s", formatDocuments(s.Documents), s.Generation))
	if err != nil {
		return graph.Fail[State](err)
	}
	if grounded == ScoreNo {
		return graph.NodeResult[State]{Delta: State{Grade: GradeNotSupported}}
	}

	useful, err := n.binaryGrade(ctx, answerGraderPrompt,
		fmt.Sprintf("User question:\n\n%s\n\nLLM answer: %s", s.Question, s.Generation))
	if err != nil {
		return graph.Fail[State](err)
	}
	if useful == ScoreNo {
		return graph.NodeResult[State]{Delta: State{Grade: GradeNotUseful}}
	}
	return graph.NodeResult[State]{Delta: State{Grade: GradeUseful, Resolution: ResolutionAnswered}}
}

func (n *nodes) transformQuery(ctx context.Context, s State) graph.NodeResult[State] {
	reply, err := n.deps.Model.Chat(ctx, []model.Message{
		system(rewritePrompt),
		user(fmt.Sprintf("Original question: %s\n\nImproved question:", s.Question)),
	}, nil)
	if err != nil {
		return graph.Fail[State](err)
	}
	rewritten := strings.TrimSpace(reply.Text)
	if rewritten == "" {
		return graph.Fail[State](fmt.Errorf("transform_query: %w", ErrEmptyReply))
	}
	return graph.NodeResult[State]{Delta: State{Question: rewritten, Revisions: s.Revisions + 1}}
}

func (n *nodes) fallback(_ context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{
		Draft:      s.Generation,
		Generation: unresolvedAnswer,
		Resolution: ResolutionUnresolved,
	}}
}
