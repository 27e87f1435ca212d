// Package openai adapts OpenAI chat completions to model.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/deepakparameswar/csflow/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI's API.
//
// Provides access to OpenAI models with:
//   - Retry on transient errors (rate limits, 5xx, transport failures)
//   - Tool/function calling support
//   - Context cancellation
//
// Example usage:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	modelName  string
	client     completionsClient
	maxRetries int
	retryDelay time.Duration
}

// completionsClient is the subset of the SDK used here, so tests can substitute it.
type completionsClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// NewChatModel creates a ChatModel configured with:
//   - 2 retry attempts for transient errors
//   - 1 second base delay, growing linearly for rate limits
//
// The SDK's own retries are disabled so that only this loop retries.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	client := sdk.NewClient(append(base, opts...)...)
	return &ChatModel{
		modelName:  modelName,
		client:     &client.Chat.Completions,
		maxRetries: 2,
		retryDelay: time.Second,
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		encoded, err := convertTools(tools)
		if err != nil {
			return model.ChatOut{}, err
		}
		params.Tools = encoded
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		completion, err := m.client.New(ctx, params)
		if err == nil {
			return convertResponse(completion)
		}

		lastErr = translateError(err)
		if !model.IsRetryable(lastErr) || attempt >= m.maxRetries {
			break
		}

		delay := m.retryDelay
		if isRateLimit(lastErr) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}
	return model.ChatOut{}, lastErr
}

func convertMessages(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, sdk.AssistantMessage(msg.Content))
		default:
			out = append(out, sdk.UserMessage(msg.Content))
		}
	}
	return out
}

func convertTools(tools []model.ToolSpec) ([]sdk.ChatCompletionToolParam, error) {
	out := make([]sdk.ChatCompletionToolParam, 0, len(tools))
	for _, spec := range tools {
		fn := shared.FunctionDefinitionParam{Name: spec.Name}
		if spec.Description != "" {
			fn.Description = sdk.String(spec.Description)
		}
		if spec.Schema != nil {
			raw, err := json.Marshal(spec.Schema)
			if err != nil {
				return nil, fmt.Errorf("openai: tool %s schema: %w", spec.Name, err)
			}
			var params shared.FunctionParameters
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("openai: tool %s schema: %w", spec.Name, err)
			}
			fn.Parameters = params
		}
		out = append(out, sdk.ChatCompletionToolParam{Function: fn})
	}
	return out, nil
}

func convertResponse(completion *sdk.ChatCompletion) (model.ChatOut, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: no choices in response")
	}

	msg := completion.Choices[0].Message
	out := model.ChatOut{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		var input map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: tool call %s arguments: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	out.Usage = model.Usage{
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	return out, nil
}

func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &model.ProviderError{Provider: "openai", Err: err}
}

func isRateLimit(err error) bool {
	var pe *model.ProviderError
	return errors.As(err, &pe) && pe.StatusCode == 429
}
