package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput is returned when a structured reply is missing, is not
// JSON, or does not match its schema. Callers must not substitute defaults.
var ErrMalformedOutput = errors.New("malformed model output")

// Structured asks m for a JSON object matching schema and decodes it into out.
//
// The schema is appended to the conversation as a final instruction. The
// first JSON object in the reply is extracted (models often wrap it in prose
// or code fences), validated, and then decoded. Every failure after the model
// call wraps ErrMalformedOutput.
//
// Example:
//
//	var grade struct{ BinaryScore string `json:"binary_score"` }
//	err := model.Structured(ctx, m, msgs, gradeSchema, &grade)
func Structured(ctx context.Context, m ChatModel, messages []Message, schema *Schema, out any) error {
	doc, err := json.Marshal(schema.Doc())
	if err != nil {
		return fmt.Errorf("marshal schema %s: %w", schema.Name(), err)
	}

	msgs := make([]Message, 0, len(messages)+1)
	msgs = append(msgs, messages...)
	msgs = append(msgs, Message{
		Role: RoleUser,
		Content: fmt.Sprintf(
			"Respond with a single JSON object for %s matching this JSON Schema, and nothing else:\n%s",
			schema.Name(), doc,
		),
	})

	reply, err := m.Chat(ctx, msgs, nil)
	if err != nil {
		return err
	}
	return DecodeStructured(reply.Text, schema, out)
}

// DecodeStructured extracts, validates and decodes a JSON object from text.
func DecodeStructured(text string, schema *Schema, out any) error {
	obj, ok := extractJSONObject(text)
	if !ok {
		return fmt.Errorf("%w: %s: no JSON object in reply", ErrMalformedOutput, schema.Name())
	}

	var v any
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, schema.Name(), err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, schema.Name(), err)
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, schema.Name(), err)
	}
	return nil
}

// extractJSONObject returns the first balanced {...} in s, honoring strings.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
