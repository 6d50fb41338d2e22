package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// maxBodyBytes caps fetched article text so one long page cannot flood the
// model's context window.
const maxBodyBytes = 32 * 1024

// Fetcher downloads a page and reduces it to plain text: scripts, styles and
// chrome stripped, tags removed, whitespace normalised, size capped.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a fetcher with a modest timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second}}
}

// NewFetcherWithClient returns a fetcher using the supplied HTTP client.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads the URL and returns its stripped, capped plain text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	trimmed := strings.TrimSpace(pageURL)
	if trimmed == "" {
		return "", errors.New("retrieve: fetch URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve: building fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "vectorpress/1.0 (news retrieval agent)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("retrieve: fetching %s: %w", trimmed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("retrieve: fetching %s: unexpected status %d", trimmed, resp.StatusCode)
	}

	// Read a little past the cap so truncation is detectable post-strip.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes*4))
	if err != nil {
		return "", fmt.Errorf("retrieve: reading %s: %w", trimmed, err)
	}

	text := stripHTML(string(body))
	if len(text) > maxBodyBytes {
		// Back the cut up to a rune boundary so the cap never splits a
		// multi-byte character into invalid UTF-8.
		cut := maxBodyBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n[truncated]"
	}
	return text, nil
}

var (
	reScript     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reNav        = regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`)
	reHeader     = regexp.MustCompile(`(?is)<header[^>]*>.*?</header>`)
	reFooter     = regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`)
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reSpaces     = regexp.MustCompile(`[ \t]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// stripHTML removes non-content elements and all remaining tags, decodes
// common entities and collapses whitespace.
func stripHTML(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reNav.ReplaceAllString(s, "")
	s = reHeader.ReplaceAllString(s, "")
	s = reFooter.ReplaceAllString(s, "")
	s = reTag.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = reSpaces.ReplaceAllString(s, " ")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
