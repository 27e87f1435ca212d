package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deepakparameswar/csflow/graph/model"
)

type fakeMessages struct {
	reply  *sdk.Message
	err    error
	params []sdk.MessageNewParams
}

func (f *fakeMessages) New(_ context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func TestNewChatModel(t *testing.T) {
	m := NewChatModel("test-api-key", "")
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	if m.modelName != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, m.modelName)
	}
}

func TestChat_Text(t *testing.T) {
	fake := &fakeMessages{reply: &sdk.Message{
		Model: "claude-3-5-haiku-latest",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Your payment "},
			{Type: "text", Text: "is processing."},
		},
		Usage: sdk.Usage{InputTokens: 42, OutputTokens: 7},
	}}
	m := &ChatModel{modelName: "claude-3-5-haiku-latest", maxTokens: 256, client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "You are a support agent."},
		{Role: model.RoleSystem, Content: "Be brief."},
		{Role: model.RoleUser, Content: "Where is my payment?"},
		{Role: model.RoleAssistant, Content: "Which user ID?"},
		{Role: model.RoleUser, Content: "U001"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Your payment is processing." {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Usage.InputTokens != 42 || out.Usage.OutputTokens != 7 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}
	if out.Usage.Model != "claude-3-5-haiku-latest" {
		t.Errorf("unexpected usage model %q", out.Usage.Model)
	}

	if len(fake.params) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.params))
	}
	p := fake.params[0]
	if len(p.System) != 1 || p.System[0].Text != "You are a support agent.\n\nBe brief." {
		t.Errorf("unexpected system prompt %+v", p.System)
	}
	if len(p.Messages) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(p.Messages))
	}
	if p.Messages[1].Role != sdk.MessageParamRoleAssistant {
		t.Errorf("expected assistant role, got %q", p.Messages[1].Role)
	}
	if len(p.Tools) != 0 {
		t.Errorf("expected no tools, got %d", len(p.Tools))
	}
}

func TestChat_ToolUse(t *testing.T) {
	fake := &fakeMessages{reply: &sdk.Message{
		Model: "claude-3-5-haiku-latest",
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "toolu_1", Name: "get_payment_status", Input: json.RawMessage(`{"user_id":"U001"}`)},
		},
	}}
	m := &ChatModel{modelName: "claude-3-5-haiku-latest", maxTokens: 256, client: fake}

	tools := []model.ToolSpec{{
		Name:        "get_payment_status",
		Description: "Look up the latest payment for a user",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"user_id": map[string]interface{}{"type": "string"}},
			"required":   []string{"user_id"},
		},
	}}
	out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "check U001"}}, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(out.ToolCalls))
	}
	call := out.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "get_payment_status" || call.Input["user_id"] != "U001" {
		t.Errorf("unexpected tool call %+v", call)
	}

	sent := fake.params[0].Tools
	if len(sent) != 1 || sent[0].OfTool == nil {
		t.Fatalf("expected one tool param, got %+v", sent)
	}
	if sent[0].OfTool.Name != "get_payment_status" {
		t.Errorf("unexpected tool name %q", sent[0].OfTool.Name)
	}
	if _, ok := sent[0].OfTool.InputSchema.ExtraFields["required"]; !ok {
		t.Error("expected required list to be forwarded in the input schema")
	}
}

func TestChat_MalformedToolInput(t *testing.T) {
	fake := &fakeMessages{reply: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "tool_use", Name: "x", Input: json.RawMessage(`{not json`)}},
	}}
	m := &ChatModel{modelName: "m", client: fake}
	if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error for malformed tool input")
	}
}

func TestChat_Errors(t *testing.T) {
	t.Run("transport error is retryable", func(t *testing.T) {
		m := &ChatModel{modelName: "m", client: &fakeMessages{err: errors.New("connection reset")}}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
		var pe *model.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProviderError, got %v", err)
		}
		if pe.Provider != "anthropic" || !model.IsRetryable(err) {
			t.Errorf("unexpected provider error %+v", pe)
		}
	})

	t.Run("rate limit keeps status code", func(t *testing.T) {
		m := &ChatModel{modelName: "m", client: &fakeMessages{err: &sdk.Error{StatusCode: 429}}}
		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
		var pe *model.ProviderError
		if !errors.As(err, &pe) {
			t.Fatal("expected ProviderError")
		}
		if pe.StatusCode != 429 || !pe.Retryable() {
			t.Errorf("expected retryable 429, got status %d", pe.StatusCode)
		}
	})

	t.Run("cancelled context short-circuits", func(t *testing.T) {
		fake := &fakeMessages{}
		m := &ChatModel{modelName: "m", client: fake}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := m.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(fake.params) != 0 {
			t.Error("expected no API call")
		}
	})
}
