package sop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/model"
	"github.com/deepakparameswar/csflow/graph/tool"
)

// GraphName identifies SOP runs in checkpoints and metrics.
const GraphName = "sop"

// Node IDs. NodeTools is the approval gate.
const (
	NodeAssistant = "assistant"
	NodeTools     = "tools"
)

// ErrNoPendingCall is returned when the tools node runs without a proposed call.
var ErrNoPendingCall = errors.New("no pending tool call")

const assistantPrompt = `You follow a Standard Operating Procedure (SOP) to resolve a customer issue, one tool at a time.
Rules:
1. Follow the SOP exactly. Do not invent steps or tools.
2. Use only these tools: %s.
3. If there is no previous tool response, start from the first relevant step of the SOP.
4. When a step depends on the previous tool response, pick the next tool accordingly.
5. Call at most one tool. If the SOP is finished, reply with a short summary for the customer and call no tool.

Available tools:
%s`

// Deps are the collaborators of the SOP graph.
type Deps struct {
	Model   model.ChatModel
	Catalog *tool.Catalog

	// NodeTimeout applies to both nodes. Zero defers to the engine default.
	NodeTimeout time.Duration

	// Retry, when set, applies to the assistant node only; tool calls run once
	// per approval.
	Retry *graph.RetryPolicy
}

type nodes struct {
	deps   Deps
	system string
}

// NewDefinition builds the SOP graph:
//
//	assistant ─┬─ tools ─► [gate] tools ─► assistant
//	           └─ done ──► End
func NewDefinition(deps Deps) (*graph.Definition[State], error) {
	if deps.Model == nil {
		return nil, errors.New("sop: chat model is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("sop: tool catalog is required")
	}

	n := &nodes{deps: deps, system: systemPrompt(deps.Catalog)}

	var assistantOpts, toolOpts []graph.NodeOption
	if deps.NodeTimeout > 0 {
		assistantOpts = append(assistantOpts, graph.WithTimeout(deps.NodeTimeout))
		toolOpts = append(toolOpts, graph.WithTimeout(deps.NodeTimeout))
	}
	if deps.Retry != nil {
		assistantOpts = append(assistantOpts, graph.WithRetry(*deps.Retry))
	}

	return graph.NewBuilder[State](GraphName, Reduce).
		AddNode(NodeAssistant, graph.NodeFunc[State](n.assistant), assistantOpts...).
		AddNode(NodeTools, graph.NodeFunc[State](n.tools), toolOpts...).
		SetEntry(NodeAssistant).
		AddConditionalEdges(NodeAssistant, routeAssistant, map[string]string{
			"tools": NodeTools,
			"done":  graph.End,
		}).
		AddEdge(NodeTools, NodeAssistant).
		InterruptBefore(NodeTools).
		Build()
}

func routeAssistant(s State) string {
	if _, ok := s.PendingCall(); ok {
		return "tools"
	}
	return "done"
}

func systemPrompt(c *tool.Catalog) string {
	var lines []string
	for _, spec := range c.Specs() {
		lines = append(lines, fmt.Sprintf("%s: %s", spec.Name, spec.Description))
	}
	return fmt.Sprintf(assistantPrompt, strings.Join(c.Names(), ", "), strings.Join(lines, "\n"))
}

// briefing renders the run's context for the assistant.
func briefing(s State) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SOP: %s\n\nuserID: %s\n", s.OperatingProcedure, s.UserID)
	if s.ImageURL != "" {
		fmt.Fprintf(&b, "imageURL: %s\n", s.ImageURL)
	}

	var done []string
	for _, m := range s.Messages {
		if m.Role == RoleTool && m.ToolResult != nil {
			done = append(done, m.ToolResult.Name)
		}
	}
	if len(done) > 0 {
		fmt.Fprintf(&b, "tools already executed: %s\n", strings.Join(done, ", "))
	}

	prev := "null"
	if len(s.ToolResults) > 0 {
		raw, err := json.Marshal(s.ToolResults)
		if err != nil {
			return "", err
		}
		prev = string(raw)
	}
	fmt.Fprintf(&b, "previous tool response: %s", prev)
	return b.String(), nil
}

func (n *nodes) assistant(ctx context.Context, s State) graph.NodeResult[State] {
	brief, err := briefing(s)
	if err != nil {
		return graph.Fail[State](err)
	}
	reply, err := n.deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: n.system},
		{Role: model.RoleUser, Content: brief},
	}, n.deps.Catalog.Specs())
	if err != nil {
		return graph.Fail[State](err)
	}

	msg := Message{Role: RoleAssistant, Content: strings.TrimSpace(reply.Text)}
	if len(reply.ToolCalls) > 0 {
		// One tool per approval: later proposals are dropped.
		call := reply.ToolCalls[0]
		if _, ok := n.deps.Catalog.Lookup(call.Name); !ok {
			return graph.Fail[State](fmt.Errorf("assistant proposed unknown tool %q: %w", call.Name, model.ErrMalformedOutput))
		}
		id := call.ID
		if id == "" {
			id = uuid.NewString()
		}
		msg.ToolCall = &ToolCall{ID: id, Name: call.Name, Arguments: call.Input}
	}
	return graph.NodeResult[State]{Delta: State{Messages: []Message{msg}}}
}

func (n *nodes) tools(ctx context.Context, s State) graph.NodeResult[State] {
	call, ok := s.PendingCall()
	if !ok {
		return graph.Fail[State](ErrNoPendingCall)
	}
	out, err := n.deps.Catalog.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		return graph.Fail[State](err)
	}

	res := ToolResult{CallID: call.ID, Name: call.Name, Output: out}
	return graph.NodeResult[State]{Delta: State{
		Messages:    []Message{{Role: RoleTool, ToolResult: &res}},
		ToolResults: []ToolResult{res},
	}}
}
