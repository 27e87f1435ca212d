// Package demo provides a scripted chat model that drives both graphs
// without a provider account. The server uses it for the "mock" provider.
package demo

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/deepakparameswar/csflow/graph/model"
)

const structuredPrefix = "Respond with a single JSON object for "

var (
	policyPattern = regexp.MustCompile(`(?i)\bpolicy\s*(?:number|no\.?|#)?\s*[:#]?\s*(\d{4,})`)
	issueWords    = []string{"not reflected", "failed", "failure", "issue", "problem", "error", "wrong", "damage", "accident", "correct", "not updated"}
)

// NewChatModel returns a MockChatModel scripted for the inquiry and SOP graphs.
func NewChatModel() *model.MockChatModel {
	return &model.MockChatModel{Respond: Respond}
}

// Respond answers one Chat call.
func Respond(msgs []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if len(msgs) == 0 {
		return model.ChatOut{}, fmt.Errorf("demo: no messages")
	}
	if len(tools) > 0 {
		return nextTool(msgs[len(msgs)-1].Content, tools), nil
	}

	last := msgs[len(msgs)-1].Content
	if name, ok := schemaName(last); ok && len(msgs) >= 2 {
		return structured(name, msgs[len(msgs)-2].Content)
	}

	switch {
	case strings.HasPrefix(last, "Question:"):
		return model.ChatOut{Text: answerFrom(last)}, nil
	case strings.HasPrefix(last, "Original question:"):
		q := strings.TrimPrefix(last, "Original question:")
		q = strings.TrimSuffix(q, "Improved question:")
		return model.ChatOut{Text: strings.TrimSpace(q)}, nil
	}
	return model.ChatOut{Text: "I don't have enough information to answer this question."}, nil
}

func schemaName(s string) (string, bool) {
	if !strings.HasPrefix(s, structuredPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(s, structuredPrefix)
	name, _, ok := strings.Cut(rest, " ")
	return name, ok
}

func isIssue(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range issueWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func reply(v any) (model.ChatOut, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return model.ChatOut{}, err
	}
	return model.ChatOut{Text: string(raw)}, nil
}

func structured(schema, input string) (model.ChatOut, error) {
	switch schema {
	case "route_decision":
		if isIssue(input) {
			return reply(map[string]string{"step": "issue_analyser", "type": "issue"})
		}
		return reply(map[string]string{"step": "rag_search", "type": "query"})

	case "issue_analysis":
		var policy, desc *string
		missing := []string{}
		if m := policyPattern.FindStringSubmatch(input); m != nil {
			policy = &m[1]
		} else {
			missing = append(missing, "policyNumber")
		}
		d := strings.Trim(strings.TrimSpace(policyPattern.ReplaceAllString(input, "")), ".,;: ")
		for _, suffix := range []string{" for", " on", " of", " in"} {
			d = strings.TrimSuffix(d, suffix)
		}
		if d != "" {
			desc = &d
		} else {
			missing = append(missing, "issueProblemDesc")
		}
		sort.Strings(missing)
		return reply(map[string]any{
			"validIssue":        policy != nil && desc != nil,
			"missingProperties": missing,
			"policyNumber":      policy,
			"issueProblemDesc":  desc,
		})

	case "route_query":
		if isIssue(input) {
			return reply(map[string]string{"datasource": "issue_sop_vectorstore"})
		}
		return reply(map[string]string{"datasource": "vectorstore"})

	case "binary_grade":
		return reply(map[string]string{"binary_score": "yes"})
	}
	return model.ChatOut{}, fmt.Errorf("demo: unknown schema %q", schema)
}

// answerFrom restates the first retrieved document.
func answerFrom(prompt string) string {
	_, ctx, ok := strings.Cut(prompt, "Context:")
	if !ok {
		return "I don't have enough information to answer this question."
	}
	ctx = strings.TrimSuffix(strings.TrimSpace(ctx), "Answer:")
	first, _, _ := strings.Cut(strings.TrimSpace(ctx), "\n\n[")
	first = strings.TrimSpace(strings.TrimPrefix(first, "[1]"))
	if first == "" {
		return "I don't have enough information to answer this question."
	}
	if len(first) > 400 {
		first = first[:400]
	}
	return first
}

// nextTool proposes the first tool the procedure mentions that has not run yet.
func nextTool(brief string, tools []model.ToolSpec) model.ChatOut {
	sopText, userID, imageURL, executed := parseBrief(brief)

	type mention struct {
		name string
		at   int
	}
	var mentions []mention
	for _, t := range tools {
		if at := strings.Index(sopText, t.Name); at >= 0 && !executed[t.Name] {
			mentions = append(mentions, mention{t.Name, at})
		}
	}
	if len(mentions) == 0 {
		return model.ChatOut{Text: "All steps of the procedure are complete."}
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].at < mentions[j].at })

	name := mentions[0].name
	args := map[string]interface{}{"user_id": userID}
	switch name {
	case "create_support_ticket":
		args["issue"] = firstLine(sopText)
	case "assess_vehicle_damage":
		args["image_url"] = imageURL
	}
	return model.ChatOut{
		Text:      fmt.Sprintf("Next SOP step: %s.", name),
		ToolCalls: []model.ToolCall{{Name: name, Input: args}},
	}
}

func parseBrief(brief string) (sopText, userID, imageURL string, executed map[string]bool) {
	executed = map[string]bool{}
	body, _, _ := strings.Cut(brief, "\n\nuserID:")
	sopText = strings.TrimPrefix(body, "SOP: ")

	for _, line := range strings.Split(brief, "\n") {
		switch {
		case strings.HasPrefix(line, "userID: "):
			userID = strings.TrimPrefix(line, "userID: ")
		case strings.HasPrefix(line, "imageURL: "):
			imageURL = strings.TrimPrefix(line, "imageURL: ")
		case strings.HasPrefix(line, "tools already executed: "):
			for _, n := range strings.Split(strings.TrimPrefix(line, "tools already executed: "), ", ") {
				executed[n] = true
			}
		}
	}
	return sopText, userID, imageURL, executed
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
