package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTool is a Tool that POSTs its arguments as a JSON object to an endpoint
// and returns the JSON object the endpoint answers with.
//
// Responses outside 2xx return an *HTTPStatusError. Response bodies larger
// than 1 MiB are rejected.
//
// Example:
//
//	classify := tool.NewHTTPTool("classify_damage", "Classify vehicle damage in an image",
//	    "http://damage:8000/classify", schema)
//	out, err := classify.Call(ctx, map[string]interface{}{"image_url": url})
type HTTPTool struct {
	name        string
	description string
	endpoint    string
	schema      map[string]interface{}
	header      http.Header
	client      *http.Client
}

// HTTPOption configures an HTTPTool.
type HTTPOption func(*HTTPTool)

// WithHTTPClient replaces the default client (30 second timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPTool) { h.client = c }
}

// WithHeader adds a request header, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPTool) { h.header.Set(key, value) }
}

const maxResponseBytes = 1 << 20

// NewHTTPTool creates an HTTPTool for endpoint.
func NewHTTPTool(name, description, endpoint string, schema map[string]interface{}, opts ...HTTPOption) *HTTPTool {
	h := &HTTPTool{
		name:        name,
		description: description,
		endpoint:    endpoint,
		schema:      schema,
		header:      make(http.Header),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Tool.
func (h *HTTPTool) Name() string { return h.name }

// Description implements Tool.
func (h *HTTPTool) Description() string { return h.description }

// Schema implements Tool.
func (h *HTTPTool) Schema() map[string]interface{} { return h.schema }

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Call implements Tool.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range h.header {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
