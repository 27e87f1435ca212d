// Package anthropic adapts Anthropic's Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deepakparameswar/csflow/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "claude-3-5-haiku-latest"

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// Provides:
//   - System prompt extraction (Anthropic uses a separate system parameter)
//   - Tool calling with JSON Schema input definitions
//   - Token usage reporting
//   - Error translation to model.ProviderError
//
// Example usage:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-latest")
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	modelName string
	maxTokens int64
	client    messagesClient
}

// messagesClient is the subset of the SDK used here, so tests can substitute it.
type messagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// NewChatModel creates a ChatModel backed by the official SDK client.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ChatModel{
		modelName: modelName,
		maxTokens: 1024,
		client:    &client.Messages,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := extractSystemPrompt(messages)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  conversation,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return model.ChatOut{}, err
		}
		params.Tools = encoded
	}

	msg, err := m.client.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	return translateResponse(msg)
}

// extractSystemPrompt separates system messages from the conversation.
func extractSystemPrompt(messages []model.Message) (string, []sdk.MessageParam) {
	var system string
	conversation := make([]sdk.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	return system, conversation
}

func encodeTools(tools []model.ToolSpec) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		schema := sdk.ToolInputSchemaParam{}
		if spec.Schema != nil {
			raw, err := json.Marshal(spec.Schema)
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool %s schema: %w", spec.Name, err)
			}
			var fields map[string]any
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("anthropic: tool %s schema: %w", spec.Name, err)
			}
			delete(fields, "type")
			schema.ExtraFields = fields
		}
		u := sdk.ToolUnionParamOfTool(schema, spec.Name)
		if u.OfTool != nil && spec.Description != "" {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (model.ChatOut, error) {
	if msg == nil {
		return model.ChatOut{}, errors.New("anthropic: response message is nil")
	}

	var out model.ChatOut
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var input map[string]interface{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: tool_use %s input: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	out.Usage = model.Usage{
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return out, nil
}

func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &model.ProviderError{Provider: "anthropic", Err: err}
}
