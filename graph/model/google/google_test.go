package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/deepakparameswar/csflow/graph/model"
)

type fakeClient struct {
	resp *genai.GenerateContentResponse
	err  error
	reqs []generateRequest
}

func (f *fakeClient) generate(_ context.Context, req generateRequest) (*genai.GenerateContentResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func candidate(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 3},
	}
}

func TestNewChatModel(t *testing.T) {
	if m := NewChatModel("key", ""); m.modelName != DefaultModel {
		t.Errorf("expected default model, got %q", m.modelName)
	}
}

func TestChat_Text(t *testing.T) {
	fake := &fakeClient{resp: candidate(genai.Text("Hello"), genai.Text("there"))}
	m := &ChatModel{modelName: "gemini-2.0-flash", client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "Be helpful."},
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: "Hello, how can I help?"},
		{Role: model.RoleUser, Content: "Payment issue"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Hello\nthere" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 3 || out.Usage.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected usage %+v", out.Usage)
	}

	req := fake.reqs[0]
	if req.system == nil || len(req.system.Parts) != 1 {
		t.Fatal("expected system instruction")
	}
	if len(req.history) != 2 || req.history[1].Role != "model" {
		t.Errorf("unexpected history %+v", req.history)
	}
	if len(req.prompt) != 1 || req.prompt[0] != genai.Text("Payment issue") {
		t.Errorf("unexpected prompt %+v", req.prompt)
	}
}

func TestChat_FunctionCall(t *testing.T) {
	fake := &fakeClient{resp: candidate(genai.FunctionCall{Name: "get_issue_status", Args: map[string]any{"user_id": "U003"}})}
	m := &ChatModel{modelName: "gemini-2.0-flash", client: fake}

	tools := []model.ToolSpec{{
		Name: "get_issue_status",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"user_id": map[string]interface{}{"type": "string", "description": "customer ID"},
				"tags":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []interface{}{"user_id"},
		},
	}}
	out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "U003"}}, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Input["user_id"] != "U003" {
		t.Errorf("unexpected tool calls %+v", out.ToolCalls)
	}

	decl := fake.reqs[0].tools[0].FunctionDeclarations[0]
	if decl.Parameters.Properties["user_id"].Type != genai.TypeString {
		t.Error("expected user_id to be a string property")
	}
	if decl.Parameters.Properties["tags"].Items.Type != genai.TypeString {
		t.Error("expected array items to be converted")
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "user_id" {
		t.Errorf("unexpected required %v", decl.Parameters.Required)
	}
}

func TestChat_SafetyFilter(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryHarassment, Blocked: true},
			},
		}},
	}
	m := &ChatModel{modelName: "m", client: &fakeClient{resp: resp}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
	var safetyErr *SafetyFilterError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyFilterError, got %v", err)
	}
	if safetyErr.Category() == "unspecified" {
		t.Error("expected blocked category to be reported")
	}
	if model.IsRetryable(err) {
		t.Error("safety blocks must not be retryable")
	}
}

func TestChat_APIError(t *testing.T) {
	m := &ChatModel{modelName: "m", client: &fakeClient{err: &googleapi.Error{Code: 503, Message: "unavailable"}}}
	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
	var pe *model.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 503 || pe.Provider != "google" {
		t.Fatalf("expected google 503 provider error, got %v", err)
	}
	if !model.IsRetryable(err) {
		t.Error("expected 503 to be retryable")
	}
}
