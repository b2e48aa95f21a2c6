/**
 * OCR Ensemble Extractor
 *
 * Runs every configured engine concurrently with a bounded per-engine
 * timeout, collects the surviving hypotheses and selects the best reading.
 * A hypothesis containing an error indicator beats raw confidence: the goal
 * is the error dialog's text, not the cleanest OCR of window chrome.
 */

package ocr

import (
	"context"
	"image"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// errorIndicators mark a hypothesis as containing error content
var errorIndicators = []string{
	"ошибка", "error", "failed", "не удалось", "сбой", "exception",
	"critical", "fatal", "критическая", "предупреждение", "warning",
}

var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3,5}\b`),
	regexp.MustCompile(`0x[0-9A-Fa-f]{8}`),
	regexp.MustCompile(`[A-Z]{2,5}-\d{3,5}`),
}

// applicationKeywords maps an application type to the tokens that hint it.
// Checked in a fixed order so overlapping hints resolve deterministically.
var applicationKeywords = []struct {
	App      string
	Keywords []string
}{
	{"1c", []string{"1с", "1c", "предприятие", "enterprise", "конфигуратор"}},
	{"windows", []string{"windows", "виндовс", "системная ошибка", "system error", "bsod"}},
	{"excel", []string{"excel", "эксель", "книга", "workbook"}},
	{"word", []string{"word", "ворд", "документ word"}},
	{"browser", []string{"chrome", "firefox", "браузер", "browser", "edge"}},
	{"sql", []string{"sql", "база данных", "database", "субд", "postgres", "mysql"}},
}

// Extractor runs the OCR ensemble
type Extractor struct {
	engines       []Engine
	engineTimeout time.Duration
}

// NewExtractor creates an extractor over the given engines
func NewExtractor(engines []Engine, engineTimeout time.Duration) *Extractor {
	if engineTimeout <= 0 {
		engineTimeout = 30 * time.Second
	}
	return &Extractor{engines: engines, engineTimeout: engineTimeout}
}

// Engines returns the number of configured engines
func (e *Extractor) Engines() int {
	return len(e.engines)
}

// Extract runs all engines in parallel and returns every successful
// hypothesis. Failed engines are logged and excluded; the slice is empty
// only when every engine failed.
func (e *Extractor) Extract(ctx context.Context, img *image.Gray) []Hypothesis {
	results := make([]Hypothesis, 0, len(e.engines))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, engine := range e.engines {
		wg.Add(1)
		go func(eng Engine) {
			defer wg.Done()

			engineCtx, cancel := context.WithTimeout(ctx, e.engineTimeout)
			defer cancel()

			start := time.Now()
			hyp, err := eng.Recognize(engineCtx, img)
			if err != nil {
				log.Printf("[OCR] Engine %s failed after %v: %v", eng.Name(), time.Since(start), err)
				return
			}
			if hyp == nil || strings.TrimSpace(hyp.Text) == "" {
				log.Printf("[OCR] Engine %s returned empty text", eng.Name())
				return
			}

			log.Printf("[OCR] Engine %s: %d chars, confidence %.1f (%v)",
				eng.Name(), len(hyp.Text), hyp.Confidence, time.Since(start))

			mu.Lock()
			results = append(results, *hyp)
			mu.Unlock()
		}(engine)
	}

	wg.Wait()
	return results
}

// SelectBest picks the winning hypothesis: candidates are ordered by
// confidence descending, and the first one containing an error indicator
// wins. With no indicator anywhere, the highest confidence wins. Returns
// nil for empty input.
func SelectBest(hypotheses []Hypothesis) *Hypothesis {
	if len(hypotheses) == 0 {
		return nil
	}

	sorted := append([]Hypothesis(nil), hypotheses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	for i := range sorted {
		if containsErrorIndicator(sorted[i].Text) {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

func containsErrorIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// ExtractErrorCodes finds error codes in recognized text: bare 3-5 digit
// numbers, 8-digit hex addresses and PREFIX-NNN identifiers. Deduplicated,
// preserving match order.
func ExtractErrorCodes(text string) []string {
	var codes []string
	seen := make(map[string]bool)

	for _, pattern := range codePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if !seen[match] {
				seen[match] = true
				codes = append(codes, match)
			}
		}
	}
	return codes
}

// ExtractStructuredInfo pulls the primary code, application hint and error
// message line out of the best hypothesis text
func ExtractStructuredInfo(text string) StructuredErrorInfo {
	info := StructuredErrorInfo{
		Codes: ExtractErrorCodes(text),
	}
	if len(info.Codes) > 0 {
		info.PrimaryCode = info.Codes[0]
	}

	lower := strings.ToLower(text)
	for _, entry := range applicationKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				info.ApplicationHint = entry.App
				break
			}
		}
		if info.ApplicationHint != "" {
			break
		}
	}

	// First substantial line mentioning an error is taken as the message
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 10 && containsErrorIndicator(trimmed) {
			info.ErrorMessage = trimmed
			break
		}
	}

	return info
}

// CleanText normalizes OCR output: collapses runs of whitespace, strips
// control characters and trims the result
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\r':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case r < 32:
			// Drop other control characters
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	lines := strings.Split(b.String(), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
