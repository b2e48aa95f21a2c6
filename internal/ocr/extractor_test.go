package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"testing"
	"time"
)

// fakeEngine returns a canned hypothesis or error
type fakeEngine struct {
	name  string
	hyp   *Hypothesis
	err   error
	delay time.Duration
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, img *image.Gray) (*Hypothesis, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hyp, nil
}

func TestSelectBestErrorIndicatorBeatsConfidence(t *testing.T) {
	hypotheses := []Hypothesis{
		{Text: "Welcome to the application main window", Confidence: 95, Engine: "a"},
		{Text: "Ошибка при выполнении операции с базой данных", Confidence: 60, Engine: "b"},
	}

	best := SelectBest(hypotheses)
	if best == nil {
		t.Fatal("expected a hypothesis")
	}
	if best.Engine != "b" {
		t.Errorf("hypothesis with error indicator should win over higher confidence, got %q", best.Engine)
	}
}

func TestSelectBestHighestConfidenceWithoutIndicators(t *testing.T) {
	hypotheses := []Hypothesis{
		{Text: "just some window text", Confidence: 40, Engine: "a"},
		{Text: "other neutral content here", Confidence: 75, Engine: "b"},
		{Text: "more plain text", Confidence: 55, Engine: "c"},
	}

	best := SelectBest(hypotheses)
	if best == nil || best.Engine != "b" {
		t.Fatalf("expected highest-confidence hypothesis, got %+v", best)
	}
}

func TestSelectBestPrefersConfidentIndicatorMatch(t *testing.T) {
	// Two engines both saw an error: the more confident one wins
	hypotheses := []Hypothesis{
		{Text: "error: connection refused", Confidence: 50, Engine: "low"},
		{Text: "Error 1045: access denied for user", Confidence: 88, Engine: "high"},
	}

	best := SelectBest(hypotheses)
	if best == nil || best.Engine != "high" {
		t.Fatalf("expected the more confident error reading, got %+v", best)
	}
}

func TestSelectBestEmptyInput(t *testing.T) {
	if best := SelectBest(nil); best != nil {
		t.Errorf("expected nil for empty input, got %+v", best)
	}
}

func TestExtractErrorCodes(t *testing.T) {
	text := "Error SQL-001 occurred at address 0xDEADBEEF with status code 4532"
	codes := ExtractErrorCodes(text)

	for _, want := range []string{"SQL-001", "0xDEADBEEF", "4532"} {
		found := false
		for _, code := range codes {
			if code == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected code %q in %v", want, codes)
		}
	}
}

func TestExtractErrorCodesDeduplicates(t *testing.T) {
	codes := ExtractErrorCodes("code 500 then again 500 and 500 once more")
	count := 0
	for _, c := range codes {
		if c == "500" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected single occurrence of 500, got %d in %v", count, codes)
	}
}

func TestExtractErrorCodesNoMatches(t *testing.T) {
	if codes := ExtractErrorCodes("no identifiers in this text"); len(codes) != 0 {
		t.Errorf("expected no codes, got %v", codes)
	}
}

func TestExtractStructuredInfo(t *testing.T) {
	text := "1С:Предприятие\nОшибка при установке соединения с сервером базы данных\nКод ошибки: 10054"

	info := ExtractStructuredInfo(text)

	if info.ApplicationHint != "1c" {
		t.Errorf("expected application hint 1c, got %q", info.ApplicationHint)
	}
	if info.PrimaryCode == "" {
		t.Error("expected a primary code")
	}
	if !strings.Contains(info.ErrorMessage, "Ошибка при установке") {
		t.Errorf("wrong error message line: %q", info.ErrorMessage)
	}
}

func TestExtractStructuredInfoShortLinesIgnored(t *testing.T) {
	// Error word in a line of 10 chars or fewer must not become the message
	info := ExtractStructuredInfo("error\nSome ordinary line without trigger words")
	if info.ErrorMessage != "" {
		t.Errorf("short line should not qualify as error message, got %q", info.ErrorMessage)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse spaces", "hello    world", "hello world"},
		{"trim lines", "  padded line  \n\n  second  ", "padded line\nsecond"},
		{"drop empty lines", "a\n\n\n\nb", "a\nb"},
		{"control chars removed", "ab\x00\x07cd", "abcd"},
		{"tabs become single space", "col1\t\tcol2", "col1 col2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractCollectsFromAllEngines(t *testing.T) {
	extractor := NewExtractor([]Engine{
		&fakeEngine{name: "a", hyp: &Hypothesis{Text: "first reading", Confidence: 70, Engine: "a"}},
		&fakeEngine{name: "b", hyp: &Hypothesis{Text: "second reading", Confidence: 80, Engine: "b"}},
	}, time.Second)

	img := image.NewGray(image.Rect(0, 0, 10, 10))
	hyps := extractor.Extract(context.Background(), img)
	if len(hyps) != 2 {
		t.Fatalf("expected 2 hypotheses, got %d", len(hyps))
	}
}

func TestExtractExcludesFailedEngines(t *testing.T) {
	extractor := NewExtractor([]Engine{
		&fakeEngine{name: "broken", err: fmt.Errorf("engine unavailable")},
		&fakeEngine{name: "ok", hyp: &Hypothesis{Text: "error text found", Confidence: 65, Engine: "ok"}},
		&fakeEngine{name: "empty", hyp: &Hypothesis{Text: "   ", Confidence: 90, Engine: "empty"}},
	}, time.Second)

	img := image.NewGray(image.Rect(0, 0, 10, 10))
	hyps := extractor.Extract(context.Background(), img)
	if len(hyps) != 1 {
		t.Fatalf("expected only the working engine's hypothesis, got %d", len(hyps))
	}
	if hyps[0].Engine != "ok" {
		t.Errorf("unexpected engine %q", hyps[0].Engine)
	}
}

func TestExtractEnforcesEngineTimeout(t *testing.T) {
	extractor := NewExtractor([]Engine{
		&fakeEngine{name: "slow", delay: 2 * time.Second,
			hyp: &Hypothesis{Text: "too late", Confidence: 99, Engine: "slow"}},
		&fakeEngine{name: "fast", hyp: &Hypothesis{Text: "made it", Confidence: 50, Engine: "fast"}},
	}, 50*time.Millisecond)

	img := image.NewGray(image.Rect(0, 0, 10, 10))

	start := time.Now()
	hyps := extractor.Extract(context.Background(), img)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("extract took %v, engine timeout not enforced", elapsed)
	}
	if len(hyps) != 1 || hyps[0].Engine != "fast" {
		t.Fatalf("expected only the fast engine's result, got %+v", hyps)
	}
}

func TestExtractAllEnginesFailReturnsEmpty(t *testing.T) {
	extractor := NewExtractor([]Engine{
		&fakeEngine{name: "a", err: fmt.Errorf("down")},
		&fakeEngine{name: "b", err: fmt.Errorf("also down")},
	}, time.Second)

	img := image.NewGray(image.Rect(0, 0, 10, 10))
	if hyps := extractor.Extract(context.Background(), img); len(hyps) != 0 {
		t.Fatalf("expected no hypotheses, got %d", len(hyps))
	}
}

func TestTesseractEngineRequiresLanguage(t *testing.T) {
	if _, err := NewTesseractEngine(nil); err == nil {
		t.Error("expected error for missing languages")
	}
}

func TestTextYieldCountsCharactersNotBytes(t *testing.T) {
	// "ошибка" is 6 characters but 12 bytes; a byte comparison would
	// overweight Cyrillic readings against Latin ones
	if got := textYield("ошибка"); got != 6 {
		t.Errorf("textYield(ошибка) = %d, want 6", got)
	}
	if textYield("ошибка") >= textYield("failure") {
		t.Error("6-character Cyrillic reading must not outweigh 7-character Latin reading")
	}
	if textYield("") != 0 {
		t.Error("empty text should yield 0")
	}
}

func TestTesseractEngineRecognize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping tesseract integration in short mode")
	}

	engine, err := NewTesseractEngine([]string{"eng"})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	img := image.NewGray(image.Rect(0, 0, 200, 60))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := engine.Recognize(ctx, img); err != nil {
		// Blank image or missing tessdata both legitimately fail here
		t.Skipf("tesseract not usable in this environment: %v", err)
	}
}
