package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/errorscope/analysis-worker/internal/apperrors"
	"github.com/errorscope/analysis-worker/internal/classify"
	"github.com/errorscope/analysis-worker/internal/kb"
	"github.com/errorscope/analysis-worker/internal/ocr"
	"github.com/errorscope/analysis-worker/internal/preprocess"
	"github.com/errorscope/analysis-worker/internal/websearch"
)

// testImage produces PNG bytes of a small gray image
func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 120; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// fakeOCREngine yields a fixed hypothesis
type fakeOCREngine struct {
	text string
	err  error
}

func (f *fakeOCREngine) Name() string { return "fake" }

func (f *fakeOCREngine) Recognize(ctx context.Context, img *image.Gray) (*ocr.Hypothesis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Hypothesis{Text: f.text, Confidence: 75, Engine: "fake"}, nil
}

// fakeSolutionStore backs a real KnowledgeBase without a database
type fakeSolutionStore struct {
	solutions []*kb.Solution
	searchErr error
}

func (f *fakeSolutionStore) Add(ctx context.Context, s *kb.Solution) (int64, error) {
	return 0, fmt.Errorf("not supported")
}

func (f *fakeSolutionStore) GetByID(ctx context.Context, id int64) (*kb.Solution, error) {
	return nil, fmt.Errorf("not found")
}

func (f *fakeSolutionStore) GetByIDs(ctx context.Context, ids []int64) ([]*kb.Solution, error) {
	return nil, nil
}

func (f *fakeSolutionStore) TextSearch(ctx context.Context, query, appType string, limit int) ([]*kb.Solution, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.solutions, nil
}

func (f *fakeSolutionStore) UpdateSuccessRate(ctx context.Context, id int64, rate float64) error {
	return nil
}

func (f *fakeSolutionStore) Statistics(ctx context.Context) (*kb.Statistics, error) {
	return &kb.Statistics{}, nil
}

// fakeHistory records calls in memory
type fakeHistory struct {
	records []*kb.HistoryRecord
	err     error
}

func (f *fakeHistory) RecordAnalysis(ctx context.Context, record *kb.HistoryRecord) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.records = append(f.records, record)
	return int64(len(f.records)), nil
}

func (f *fakeHistory) SetHelpful(ctx context.Context, recordID int64, helpful bool) error {
	return nil
}

func newTestAnalyzer(t *testing.T, engine ocr.Engine, store kb.SolutionStore, history *fakeHistory) *Analyzer {
	t.Helper()

	knowledgeBase, err := kb.NewKnowledgeBase(store, nil, nil)
	if err != nil {
		t.Fatalf("failed to create knowledge base: %v", err)
	}

	a, err := NewAnalyzer(Config{
		Preprocessor:  preprocess.NewPreprocessor(200),
		Extractor:     ocr.NewExtractor([]ocr.Engine{engine}, time.Second),
		Classifier:    classify.NewClassifier(nil),
		KnowledgeBase: knowledgeBase,
		History:       history,
		Searcher:      websearch.NewSearcher(time.Millisecond),
		MaxResults:    5,
	})
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}
	return a
}

func TestAnalyzeFullPipeline(t *testing.T) {
	store := &fakeSolutionStore{
		solutions: []*kb.Solution{
			{ID: 7, ErrorText: "known error", SolutionText: "restart the service\nthen check logs"},
		},
	}
	history := &fakeHistory{}
	engine := &fakeOCREngine{text: "Непонятная ошибка при выполнении операции 4152"}
	a := newTestAnalyzer(t, engine, store, history)

	result, err := a.Analyze(context.Background(), &Request{
		JobID:     "job-1",
		ImageData: testImage(t),
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.Engine != "fake" {
		t.Errorf("engine = %q", result.Engine)
	}
	if result.PrimaryCode != "4152" {
		t.Errorf("primary code = %q, want 4152", result.PrimaryCode)
	}
	if result.Classification.Severity != "high" {
		t.Errorf("severity = %q, want high", result.Classification.Severity)
	}
	if len(result.Solutions) != 1 || result.Solutions[0].ID != 7 {
		t.Errorf("unexpected solutions: %+v", result.Solutions)
	}
	if len(result.WebResults) == 0 {
		t.Error("expected at least the web search fallback result")
	}
	if result.HistoryID != 1 {
		t.Errorf("history id = %d, want 1", result.HistoryID)
	}

	if len(history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(history.records))
	}
	record := history.records[0]
	if record.SolutionID != 7 {
		t.Errorf("history solution id = %d, want 7", record.SolutionID)
	}
	if record.SolutionTitle != "restart the service" {
		t.Errorf("history title should be the solution's first line, got %q", record.SolutionTitle)
	}
}

func TestAnalyzeDecodeFailure(t *testing.T) {
	a := newTestAnalyzer(t, &fakeOCREngine{text: "irrelevant"}, &fakeSolutionStore{}, &fakeHistory{})

	_, err := a.Analyze(context.Background(), &Request{
		JobID:     "job-2",
		ImageData: []byte("definitely not an image"),
	})
	if err == nil {
		t.Fatal("expected decode error")
	}

	var analysisErr *apperrors.AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Code != apperrors.ErrorDecodeFailed {
		t.Errorf("expected DECODE_FAILED, got %v", err)
	}
}

func TestAnalyzeAllEnginesFailed(t *testing.T) {
	a := newTestAnalyzer(t, &fakeOCREngine{err: fmt.Errorf("engine broken")},
		&fakeSolutionStore{}, &fakeHistory{})

	_, err := a.Analyze(context.Background(), &Request{
		JobID:     "job-3",
		ImageData: testImage(t),
	})
	if err == nil {
		t.Fatal("expected no-text error")
	}

	var analysisErr *apperrors.AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Code != apperrors.ErrorNoTextRecognized {
		t.Errorf("expected NO_TEXT_RECOGNIZED, got %v", err)
	}
}

func TestAnalyzeHistoryWriteFailurePropagates(t *testing.T) {
	history := &fakeHistory{err: fmt.Errorf("database down")}
	a := newTestAnalyzer(t, &fakeOCREngine{text: "ошибка при записи данных"},
		&fakeSolutionStore{}, history)

	_, err := a.Analyze(context.Background(), &Request{
		JobID:     "job-4",
		ImageData: testImage(t),
	})
	if err == nil {
		t.Fatal("expected storage error")
	}

	var analysisErr *apperrors.AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Code != apperrors.ErrorStorageFailed {
		t.Errorf("expected STORAGE_FAILED, got %v", err)
	}
}

func TestAnalyzeSearchFailureDegrades(t *testing.T) {
	store := &fakeSolutionStore{searchErr: fmt.Errorf("search backend down")}
	history := &fakeHistory{}
	a := newTestAnalyzer(t, &fakeOCREngine{text: "ошибка чтения из файла данных"}, store, history)

	result, err := a.Analyze(context.Background(), &Request{
		JobID:     "job-5",
		ImageData: testImage(t),
	})
	if err != nil {
		t.Fatalf("search failure must not abort analysis: %v", err)
	}
	if len(result.Solutions) != 0 {
		t.Errorf("expected no solutions, got %d", len(result.Solutions))
	}
	if len(history.records) != 1 {
		t.Errorf("analysis should still be recorded")
	}
}

func TestSearchQueryPrecedence(t *testing.T) {
	info := ocr.StructuredErrorInfo{ErrorMessage: "ошибка подключения к серверу"}
	classification := classify.Classification{Keywords: []string{"сервер", "подключение"}}

	if q := searchQuery("full text", info, classification); q != "ошибка подключения к серверу" {
		t.Errorf("error message should win, got %q", q)
	}

	info.ErrorMessage = ""
	if q := searchQuery("full text", info, classification); q != "сервер подключение" {
		t.Errorf("keywords should be next, got %q", q)
	}

	classification.Keywords = nil
	if q := searchQuery("full text", info, classification); q != "full text" {
		t.Errorf("raw text is the last resort, got %q", q)
	}
}
