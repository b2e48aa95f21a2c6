package websearch

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestIsRelevantLink(t *testing.T) {
	tests := []struct {
		name  string
		href  string
		title string
		want  bool
	}{
		{"error title accepted", "/questions/123", "How to fix this error", true},
		{"russian solution accepted", "/t/456", "Решение проблемы с 1С", true},
		{"neutral title rejected", "/questions/789", "General discussion thread", false},
		{"anchor link rejected", "#section", "Known error list", false},
		{"javascript rejected", "javascript:void(0)", "Fix it now", false},
		{"mailto rejected", "mailto:admin@host", "Error contact", false},
		{"login path rejected", "/login?next=errors", "Error page", false},
		{"empty href rejected", "", "Some error", false},
		{"empty title rejected", "/questions/1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRelevantLink(tt.href, tt.title); got != tt.want {
				t.Errorf("IsRelevantLink(%q, %q) = %v, want %v", tt.href, tt.title, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		href   string
		source string
		want   string
	}{
		{"https://other.com/page", "https://stackoverflow.com", "https://other.com/page"},
		{"/questions/1", "https://stackoverflow.com", "https://stackoverflow.com/questions/1"},
		{"questions/2", "https://stackoverflow.com/", "https://stackoverflow.com/questions/2"},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.href, tt.source); got != tt.want {
			t.Errorf("NormalizeURL(%q, %q) = %q, want %q", tt.href, tt.source, got, tt.want)
		}
	}
}

func TestScoreRelevance(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  float64
	}{
		{"neutral title keeps base", "some random page", 0.5},
		{"one positive keyword", "fix for the issue", 0.7},
		{"negative keyword lowers", "a question about things", 0.4},
		{"mixed keywords", "question about error fix", 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreRelevance(tt.title)
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("ScoreRelevance(%q) = %.2f, want %.2f", tt.title, got, tt.want)
			}
		})
	}
}

func TestScoreRelevanceClamped(t *testing.T) {
	high := ScoreRelevance("решение solution исправить fix ошибка error")
	if high > 1.0 {
		t.Errorf("relevance above 1.0: %.2f", high)
	}
	low := ScoreRelevance("вопрос question проблема problem " +
		"вопрос question проблема problem")
	if low < 0.0 {
		t.Errorf("relevance below 0.0: %.2f", low)
	}
}

func TestParseSearchResults(t *testing.T) {
	page := `<html><body>
		<div><a href="/questions/1">How to fix error 1045</a> MySQL access denied explanation</div>
		<div><a href="/questions/2">Unrelated discussion</a></div>
		<div><a href="/login">Error login portal</a></div>
		<div><a href="https://ext.example.com/fix">External solution for the error</a></div>
	</body></html>`

	results, err := ParseSearchResults(strings.NewReader(page), "https://stackoverflow.com", 10)
	if err != nil {
		t.Fatalf("ParseSearchResults failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 relevant results, got %d: %+v", len(results), results)
	}

	byURL := make(map[string]Result)
	for _, r := range results {
		byURL[r.URL] = r
	}

	local, ok := byURL["https://stackoverflow.com/questions/1"]
	if !ok {
		t.Fatal("relative link not normalized into result set")
	}
	if !strings.Contains(local.Snippet, "MySQL access denied") {
		t.Errorf("snippet should carry parent text, got %q", local.Snippet)
	}
	if _, ok := byURL["https://ext.example.com/fix"]; !ok {
		t.Error("absolute external link missing from results")
	}
}

func TestParseSearchResultsRespectsMax(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		b.WriteString(`<a href="/q/` + strings.Repeat("x", i+1) + `">error fix thread</a>`)
	}
	b.WriteString("</body></html>")

	results, err := ParseSearchResults(strings.NewReader(b.String()), "https://superuser.com", 3)
	if err != nil {
		t.Fatalf("ParseSearchResults failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected max 3 results, got %d", len(results))
	}
}

func TestSearchAlwaysReturnsFallback(t *testing.T) {
	searcher := NewSearcher(50 * time.Millisecond)

	// Unknown application type means no sources are queried; the general
	// fallback entry must still be present
	results := searcher.Search(context.Background(), "ошибка 1045", "unknown-app", 5)

	if len(results) == 0 {
		t.Fatal("expected at least the fallback result")
	}
	if results[0].Source != "Google Search" {
		t.Errorf("expected fallback source, got %q", results[0].Source)
	}
	if !strings.Contains(results[0].URL, "google.com/search") {
		t.Errorf("unexpected fallback URL %q", results[0].URL)
	}
}

func TestSearchDeduplicatesByURL(t *testing.T) {
	results := dedupeByURL([]Result{
		{URL: "https://a.example/1", Title: "first"},
		{URL: "https://a.example/1", Title: "duplicate"},
		{URL: "https://a.example/2", Title: "second"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 unique results, got %d", len(results))
	}
	if results[0].Title != "first" {
		t.Errorf("dedup should keep first occurrence, got %q", results[0].Title)
	}
}
