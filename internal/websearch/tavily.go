// Package websearch queries a web search API for questions the knowledge base
// does not cover.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepakparameswar/csflow/graph/tool"
)

// DefaultURL is the Tavily search endpoint.
const DefaultURL = "https://api.tavily.com/search"

// DefaultMaxResults is the number of results requested per query.
const DefaultMaxResults = 3

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Tavily is a Searcher backed by the Tavily API.
type Tavily struct {
	endpoint   *tool.HTTPTool
	maxResults int
}

// Option configures a Tavily client.
type Option func(*tavilyOptions)

type tavilyOptions struct {
	url        string
	maxResults int
	http       []tool.HTTPOption
}

// WithURL overrides the endpoint.
func WithURL(url string) Option {
	return func(o *tavilyOptions) { o.url = url }
}

// WithMaxResults overrides DefaultMaxResults.
func WithMaxResults(n int) Option {
	return func(o *tavilyOptions) { o.maxResults = n }
}

// WithHTTPOptions passes options to the underlying HTTP tool.
func WithHTTPOptions(opts ...tool.HTTPOption) Option {
	return func(o *tavilyOptions) { o.http = append(o.http, opts...) }
}

// NewTavily creates a client authenticating with apiKey.
func NewTavily(apiKey string, opts ...Option) (*Tavily, error) {
	if apiKey == "" {
		return nil, errors.New("tavily API key is required")
	}
	o := tavilyOptions{url: DefaultURL, maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxResults < 1 {
		return nil, fmt.Errorf("max results must be positive, got %d", o.maxResults)
	}

	httpOpts := append([]tool.HTTPOption{tool.WithHeader("Authorization", "Bearer "+apiKey)}, o.http...)
	return &Tavily{
		endpoint:   tool.NewHTTPTool("tavily_search", "Search the web", o.url, nil, httpOpts...),
		maxResults: o.maxResults,
	}, nil
}

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	raw, err := t.endpoint.Call(ctx, map[string]interface{}{
		"query":        query,
		"max_results":  t.maxResults,
		"search_depth": "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	var resp struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("tavily search: decode: %w", err)
	}
	if len(resp.Results) > t.maxResults {
		resp.Results = resp.Results[:t.maxResults]
	}
	return resp.Results, nil
}
