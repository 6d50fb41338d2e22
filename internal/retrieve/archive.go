// Package retrieve implements the retrieval source adapters behind the
// agent's tools: a paginated news archive API, a web search API, topical
// RSS/Atom feeds with similarity filtering, a bounded page fetcher, and
// semantic search over the pre-indexed article corpus.
package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultArchiveBaseURL is the Guardian content API endpoint.
const DefaultArchiveBaseURL = "https://content.guardianapis.com"

// ArchiveArticle is one article returned by an archive search.
type ArchiveArticle struct {
	// ID is the archive's stable article identifier, e.g.
	// "world/2025/oct/21/some-headline". It is the dedup key for ingestion.
	ID string

	// Title is the article headline.
	Title string

	// Section is the archive section name, e.g. "Technology".
	Section string

	// URL is the canonical web address of the article.
	URL string

	// PublishedAt is the publication timestamp. Zero when the archive did
	// not report one.
	PublishedAt time.Time

	// Body is the full plain-text body, when requested via show-fields.
	Body string

	// WordCount is the archive-reported body length in words.
	WordCount int
}

// ArchiveOption configures an [ArchiveClient].
type ArchiveOption func(*ArchiveClient)

// WithArchiveBaseURL overrides the API endpoint. Pointing the client at a
// different Guardian-shaped API (or a test server) only needs this option.
func WithArchiveBaseURL(baseURL string) ArchiveOption {
	return func(c *ArchiveClient) {
		c.baseURL = baseURL
	}
}

// WithArchiveHTTPClient overrides the HTTP client.
func WithArchiveHTTPClient(client *http.Client) ArchiveOption {
	return func(c *ArchiveClient) {
		c.client = client
	}
}

// ArchiveClient searches a Guardian-shaped news archive API. The API is
// paginated; Search walks pages sequentially and distinguishes a dead API
// (first page fails) from a degraded one (a later page fails after results
// have already been collected).
type ArchiveClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

// NewArchive constructs an archive client. name labels the backing archive
// in logs and errors ("guardian", "nytimes", ...).
func NewArchive(name, apiKey string, opts ...ArchiveOption) (*ArchiveClient, error) {
	if name == "" {
		return nil, errors.New("retrieve: archive name is empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("retrieve: archive %q: API key is empty", name)
	}
	c := &ArchiveClient{
		name:    name,
		baseURL: DefaultArchiveBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     slog.Default().With("archive", name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the archive label given at construction.
func (c *ArchiveClient) Name() string { return c.name }

// ArchiveQuery holds the validated parameters of one archive search.
type ArchiveQuery struct {
	// Query is the search text.
	Query string

	// Section restricts results to one archive section. Empty means all.
	Section string

	// PageSize is the number of articles per page.
	PageSize int

	// MaxPages is the number of pages to walk, starting at page 1.
	MaxPages int

	// OrderBy is the archive sort order: "relevance", "newest" or "oldest".
	OrderBy string

	// FromDate and ToDate bound publication dates, inclusive, in
	// "2006-01-02" form. Empty means unbounded on that side.
	FromDate string
	ToDate   string
}

// guardianEnvelope is the wire shape of a Guardian content API response.
type guardianEnvelope struct {
	Response struct {
		Status  string `json:"status"`
		Pages   int    `json:"pages"`
		Results []struct {
			ID                 string `json:"id"`
			WebTitle           string `json:"webTitle"`
			SectionName        string `json:"sectionName"`
			WebURL             string `json:"webUrl"`
			WebPublicationDate string `json:"webPublicationDate"`
			Fields             struct {
				BodyText  string `json:"bodyText"`
				Wordcount string `json:"wordcount"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

// Search walks up to q.MaxPages result pages and returns the collected
// articles.
//
// A failure on the first page means the archive gave us nothing and is
// returned as an error. A failure on a later page degrades the call instead:
// the pages already collected are returned and the failure is logged, so a
// flaky page 7 never throws away six good pages.
func (c *ArchiveClient) Search(ctx context.Context, q ArchiveQuery) ([]ArchiveArticle, error) {
	if q.Query == "" {
		return nil, fmt.Errorf("retrieve: archive %q: query is empty", c.name)
	}
	if q.PageSize <= 0 {
		q.PageSize = 3
	}
	if q.MaxPages <= 0 {
		q.MaxPages = 1
	}
	if q.OrderBy == "" {
		q.OrderBy = "relevance"
	}
	for _, d := range []struct{ field, value string }{
		{"from date", q.FromDate},
		{"to date", q.ToDate},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d.value); err != nil {
			return nil, fmt.Errorf("retrieve: archive %q: %s %q is not a YYYY-MM-DD date", c.name, d.field, d.value)
		}
	}

	var articles []ArchiveArticle
	for page := 1; page <= q.MaxPages; page++ {
		pageArticles, totalPages, err := c.fetchPage(ctx, q, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("retrieve: archive %q: %w", c.name, err)
			}
			c.log.Warn("archive page failed, returning partial results",
				"page", page, "collected", len(articles), "error", err)
			return articles, nil
		}
		articles = append(articles, pageArticles...)
		if totalPages > 0 && page >= totalPages {
			break
		}
	}
	return articles, nil
}

func (c *ArchiveClient) fetchPage(ctx context.Context, q ArchiveQuery, page int) ([]ArchiveArticle, int, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("show-fields", "bodyText,wordcount")
	params.Set("page-size", strconv.Itoa(q.PageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("order-by", q.OrderBy)
	params.Set("api-key", c.apiKey)
	if q.Section != "" {
		params.Set("section", q.Section)
	}
	if q.FromDate != "" {
		params.Set("from-date", q.FromDate)
	}
	if q.ToDate != "" {
		params.Set("to-date", q.ToDate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("page %d: unexpected status %d", page, resp.StatusCode)
	}

	var envelope guardianEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, 0, fmt.Errorf("page %d: decoding response: %w", page, err)
	}

	articles := make([]ArchiveArticle, 0, len(envelope.Response.Results))
	for _, r := range envelope.Response.Results {
		publishedAt, _ := time.Parse(time.RFC3339, r.WebPublicationDate)
		wordCount, _ := strconv.Atoi(r.Fields.Wordcount)
		articles = append(articles, ArchiveArticle{
			ID:          r.ID,
			Title:       r.WebTitle,
			Section:     r.SectionName,
			URL:         r.WebURL,
			PublishedAt: publishedAt,
			Body:        r.Fields.BodyText,
			WordCount:   wordCount,
		})
	}
	return articles, envelope.Response.Pages, nil
}

// FormatArticles renders archive search results as tool-result text. Each
// article gets a source header so the model can attribute what it quotes.
func FormatArticles(archiveName string, articles []ArchiveArticle) string {
	if len(articles) == 0 {
		return fmt.Sprintf("No %s articles matched the query.", archiveName)
	}
	var sb strings.Builder
	for i, a := range articles {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s | %s | %q]\n%s\n%s",
			a.Section, a.PublishedAt.Format("2006-01-02"), a.Title, a.URL, a.Body)
	}
	return sb.String()
}
