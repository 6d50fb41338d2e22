package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultWebSearchBaseURL is the Tavily search API endpoint.
const DefaultWebSearchBaseURL = "https://api.tavily.com"

// WebResult is one result from a web search.
type WebResult struct {
	Title   string
	URL     string
	Content string
}

// WebSearchOption configures a [WebSearchClient].
type WebSearchOption func(*WebSearchClient)

// WithWebSearchBaseURL overrides the API endpoint, for tests.
func WithWebSearchBaseURL(baseURL string) WebSearchOption {
	return func(c *WebSearchClient) {
		c.baseURL = baseURL
	}
}

// WithWebSearchHTTPClient overrides the HTTP client.
func WithWebSearchHTTPClient(client *http.Client) WebSearchOption {
	return func(c *WebSearchClient) {
		c.client = client
	}
}

// WebSearchClient calls the Tavily search API. It serves the queries that
// are not news retrieval: tutorials, definitions, background knowledge,
// finance lookups. Results are returned in API order without any local
// similarity scoring.
type WebSearchClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWebSearch constructs a web search client.
func NewWebSearch(apiKey string, opts ...WebSearchOption) (*WebSearchClient, error) {
	if apiKey == "" {
		return nil, errors.New("retrieve: web search API key is empty")
	}
	c := &WebSearchClient{
		apiKey:  apiKey,
		baseURL: DefaultWebSearchBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search posts one query. topic is the API's topic hint ("general" or
// "finance"); maxResults bounds the returned slice.
func (c *WebSearchClient) Search(ctx context.Context, query, topic string, maxResults int) ([]WebResult, error) {
	if query == "" {
		return nil, errors.New("retrieve: web search query is empty")
	}
	if topic == "" {
		topic = "general"
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"api_key":     c.apiKey,
		"topic":       topic,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: encoding web search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("retrieve: building web search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve: web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieve: web search returned status %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("retrieve: decoding web search response: %w", err)
	}

	results := make([]WebResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, WebResult{Title: r.Title, URL: r.URL, Content: r.Content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

// FormatWebResults renders web search results as tool-result text.
func FormatWebResults(results []WebResult) string {
	if len(results) == 0 {
		return "No web results found for the query."
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%q]\n%s\n%s", r.Title, r.URL, r.Content)
	}
	return sb.String()
}
