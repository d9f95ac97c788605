// Package websearch provides the web_search tool backed by the Tavily API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/quill/internal/agent"
)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 5
)

// Tool performs web searches through Tavily.
type Tool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the search tool.
type Option func(*Tool)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(t *Tool) { t.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.httpClient = c }
}

// New creates the web_search tool.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return "web_search" }

func (t *Tool) Description() string {
	return "Search the web and return titles, URLs, and content snippets for the top results."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"max_results": {"type": "integer", "description": "Number of results to return", "minimum": 1, "maximum": 10}
		},
		"required": ["query"]
	}`)
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}
	if args.MaxResults <= 0 {
		args.MaxResults = defaultMaxResults
	}
	if t.apiKey == "" {
		return &agent.ToolResult{Content: "web search is not configured: missing API key", IsError: true}, nil
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     t.apiKey,
		Query:      args.Query,
		MaxResults: args.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("search request failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &agent.ToolResult{
			Content: fmt.Sprintf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			IsError: true,
		}, nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("decode search response: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: formatResults(args.Query, &parsed)}, nil
}

func formatResults(query string, resp *searchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	if resp.Answer != "" {
		fmt.Fprintf(&b, "Summary: %s\n\n", resp.Answer)
	}
	if len(resp.Results) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
