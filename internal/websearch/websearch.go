/**
 * Web Search Collaborator
 *
 * Best-effort lookup of solutions on public forums and Q&A sites. Every
 * failure path yields an empty or partial result list; web search never
 * aborts an analysis.
 */

package websearch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Result is one web search hit
type Result struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// searchSources maps application types to the forums worth querying
var searchSources = map[string][]string{
	"1c": {
		"https://forum.1c.ru",
		"https://infostart.ru",
		"https://habr.com/ru/hub/1c/",
	},
	"windows": {
		"https://answers.microsoft.com/ru-ru",
		"https://superuser.com",
		"https://stackoverflow.com",
	},
	"office": {
		"https://answers.microsoft.com/ru-ru/office",
		"https://stackoverflow.com",
	},
	"browser": {
		"https://stackoverflow.com",
		"https://superuser.com",
	},
}

// Link titles must mention one of these to count as a hit
var titleKeywords = []string{"ошибка", "error", "решение", "solution", "исправить", "fix"}

var positiveKeywords = []string{"решение", "solution", "исправить", "fix", "ошибка", "error"}
var negativeKeywords = []string{"вопрос", "question", "проблема", "problem"}

// Service links that never lead to content
var excludePrefixes = []string{"#", "javascript:", "mailto:", "tel:"}
var excludePaths = []string{"/login", "/register", "/profile", "/admin"}

// Searcher queries external sources for solutions
type Searcher struct {
	httpClient *http.Client
}

// NewSearcher creates a searcher with the given per-request timeout
func NewSearcher(timeout time.Duration) *Searcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Searcher{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search queries the application's sources and returns up to max results
// sorted by relevance. Always returns a usable (possibly empty) slice.
func (s *Searcher) Search(ctx context.Context, errorText, applicationType string, max int) []Result {
	if max <= 0 {
		max = 5
	}

	var results []Result
	for _, source := range searchSources[applicationType] {
		found, err := s.searchSource(ctx, source, errorText, max)
		if err != nil {
			log.Printf("[WebSearch] Source %s failed: %v", source, err)
			continue
		}
		results = append(results, found...)
	}

	// General fallback query so the user always gets a starting point
	query := errorText
	if applicationType != "" {
		query = fmt.Sprintf("%s %s решение", errorText, applicationType)
	}
	results = append(results, Result{
		Title:     "Search: " + query,
		URL:       "https://www.google.com/search?q=" + url.QueryEscape(query),
		Snippet:   "Web search results for: " + query,
		Source:    "Google Search",
		Relevance: 0.7,
	})

	unique := dedupeByURL(results)
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Relevance > unique[j].Relevance
	})

	if len(unique) > max {
		unique = unique[:max]
	}
	return unique
}

func (s *Searcher) searchSource(ctx context.Context, source, query string, max int) ([]Result, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s", strings.TrimRight(source, "/"), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	// Bound the page size; search pages should never be this large
	body := io.LimitReader(resp.Body, 2<<20)
	return ParseSearchResults(body, source, max)
}

// ParseSearchResults walks the HTML and collects relevant anchor elements
func ParseSearchResults(r io.Reader, source string, max int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			title := strings.TrimSpace(nodeText(n))
			if IsRelevantLink(href, title) {
				results = append(results, Result{
					Title:     title,
					URL:       NormalizeURL(href, source),
					Snippet:   snippetFor(n),
					Source:    source,
					Relevance: ScoreRelevance(title),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > max {
		results = results[:max]
	}
	return results, nil
}

// IsRelevantLink rejects service links and requires an error-related title
func IsRelevantLink(href, title string) bool {
	if href == "" || title == "" {
		return false
	}
	for _, prefix := range excludePrefixes {
		if strings.HasPrefix(href, prefix) {
			return false
		}
	}
	for _, path := range excludePaths {
		if strings.Contains(href, path) {
			return false
		}
	}

	lower := strings.ToLower(title)
	for _, kw := range titleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NormalizeURL resolves relative hrefs against the source root
func NormalizeURL(href, source string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimRight(source, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

// ScoreRelevance scores a title on keyword hits, clamped to [0, 1].
// Base 0.5, +0.2 per positive keyword, -0.1 per negative keyword.
func ScoreRelevance(title string) float64 {
	relevance := 0.5
	lower := strings.ToLower(title)

	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			relevance += 0.2
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			relevance -= 0.1
		}
	}

	if relevance > 1.0 {
		return 1.0
	}
	if relevance < 0.0 {
		return 0.0
	}
	return relevance
}

// snippetFor takes the parent element's text as context, capped at 200 chars
func snippetFor(n *html.Node) string {
	text := ""
	if n.Parent != nil {
		text = strings.TrimSpace(nodeText(n.Parent))
	}
	if text == "" {
		text = strings.TrimSpace(nodeText(n))
	}
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}

func dedupeByURL(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	unique := make([]Result, 0, len(results))
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		unique = append(unique, r)
	}
	return unique
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
